package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// conversationsCmd lists stored conversations.
var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List stored conversations",
	RunE:  runConversations,
}

func runConversations(cmd *cobra.Command, args []string) error {
	storage, sqlDB, err := openStorage()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	convs, err := storage.ListConversations(context.Background())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(convs)
	}

	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	for _, conv := range convs {
		state := "valid"
		if !conv.Valid {
			state = "invalid"
		}
		fmt.Printf("%s\t%s\t%s\n",
			conv.Key, state,
			conv.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	return nil
}
