package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
)

var (
	// cardsKind selects the card set (chat or book).
	cardsKind string

	// exportOutput is the export destination file, empty for stdout.
	exportOutput string
)

// cardsCmd groups the summary card subcommands.
var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Inspect and manage summary cards",
}

var cardsListCmd = &cobra.Command{
	Use:   "list <conversation-key>",
	Short: "List summary cards for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runCardsList,
}

var cardsMergeCmd = &cobra.Command{
	Use:   "merge <conversation-key> <card-id> <card-id> [card-id...]",
	Short: "Merge summary cards into one",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runCardsMerge,
}

var cardsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-key> <card-id>",
	Short: "Delete one summary card",
	Args:  cobra.ExactArgs(2),
	RunE:  runCardsDelete,
}

var cardsExportCmd = &cobra.Command{
	Use:   "export <conversation-key>",
	Short: "Export summary cards as HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runCardsExport,
}

func init() {
	cardsCmd.PersistentFlags().StringVar(
		&cardsKind, "kind", "chat",
		"Card kind: chat or book",
	)
	cardsExportCmd.Flags().StringVarP(
		&exportOutput, "output", "o", "",
		"Output file (default: stdout)",
	)

	cardsCmd.AddCommand(cardsListCmd)
	cardsCmd.AddCommand(cardsMergeCmd)
	cardsCmd.AddCommand(cardsDeleteCmd)
	cardsCmd.AddCommand(cardsExportCmd)
}

func runCardsList(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(cardsKind)
	if err != nil {
		return err
	}

	storage, sqlDB, err := openStorage()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	set, err := storage.ListCards(
		context.Background(), chat.ConversationKey(args[0]), kind,
	)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}
	set = cards.Sorted(set)

	if outputFormat == "json" {
		return printJSON(set)
	}

	if len(set) == 0 {
		fmt.Println("No cards.")
		return nil
	}

	for _, card := range set {
		fmt.Printf("%s\t[%d-%d]\t%s\n    %s\n",
			card.ID, card.Start, card.End,
			card.UpdatedAt.Format("2006-01-02 15:04"),
			card.Content,
		)
	}

	return nil
}

func runCardsMerge(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(cardsKind)
	if err != nil {
		return err
	}

	storage, sqlDB, err := openStorage()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	ctx := context.Background()
	key := chat.ConversationKey(args[0])

	set, err := storage.ListCards(ctx, key, kind)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	merged, ok := cards.Merge(set, args[1:], time.Now())
	if !ok {
		return fmt.Errorf("need at least two matching card IDs to merge")
	}

	if err := storage.SaveCards(ctx, key, kind, merged); err != nil {
		return fmt.Errorf("save cards: %w", err)
	}

	fmt.Printf("Merged %d cards into one (%d remaining).\n",
		len(set)-len(merged)+1, len(merged),
	)

	return nil
}

func runCardsDelete(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(cardsKind)
	if err != nil {
		return err
	}

	storage, sqlDB, err := openStorage()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	ctx := context.Background()
	key := chat.ConversationKey(args[0])

	set, err := storage.ListCards(ctx, key, kind)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	set = cards.Delete(set, args[1], time.Now())

	if err := storage.SaveCards(ctx, key, kind, set); err != nil {
		return fmt.Errorf("save cards: %w", err)
	}

	fmt.Println("Deleted.")

	return nil
}

func runCardsExport(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(cardsKind)
	if err != nil {
		return err
	}

	storage, sqlDB, err := openStorage()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	set, err := storage.ListCards(
		context.Background(), chat.ConversationKey(args[0]), kind,
	)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	page, err := renderCardsHTML(args[0], string(kind), cards.Sorted(set))
	if err != nil {
		return err
	}

	if exportOutput == "" {
		fmt.Println(page)
		return nil
	}

	if err := os.WriteFile(exportOutput, []byte(page), 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported %d cards to %s\n", len(set), exportOutput)

	return nil
}

// renderCardsHTML renders the card set as one HTML page, treating card
// content as markdown.
func renderCardsHTML(key, kind string, set []cards.Card) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	var b bytes.Buffer
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head>\n"+
		"<meta charset=\"utf-8\">\n<title>%s summaries for %s</title>\n"+
		"</head>\n<body>\n<h1>%s summaries for %s</h1>\n",
		kind, key, kind, key,
	)

	for _, card := range set {
		fmt.Fprintf(&b, "<section>\n<h2>Range %d&ndash;%d</h2>\n",
			card.Start, card.End,
		)
		if err := md.Convert([]byte(card.Content), &b); err != nil {
			return "", fmt.Errorf("render card %s: %w", card.ID, err)
		}
		b.WriteString("</section>\n")
	}

	b.WriteString("</body>\n</html>\n")

	return b.String(), nil
}
