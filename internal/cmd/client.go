package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/observability"
	"github.com/disputekit/disputekit/internal/output"
)

var clientCmd = &cobra.Command{
	Use:     "client",
	Aliases: []string{"clients"},
	Short:   "Manage client records used to fill letters",
}

var clientImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: `Create or update clients listed under "clients:" in a YAML file`,
	Args:  cobra.ExactArgs(1),
	RunE:  runClientImport,
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored clients (SSNs masked)",
	Args:  cobra.NoArgs,
	RunE:  runClientList,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(clientImportCmd, clientListCmd)
	clientListCmd.Flags().String("output", "table", "Output format: table, json, markdown")
}

func runClientImport(cmd *cobra.Command, args []string) error {
	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}
	if len(data.Clients) == 0 {
		return &core.ValidationRejectedError{Field: "clients", Reason: "file contains no clients"}
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	for _, client := range data.Clients {
		if err := st.UpsertClient(ctx, client); err != nil {
			return fmt.Errorf("client %q: %w", client.ClientID, err)
		}
	}
	observability.CLILogger.Info("Clients imported", zap.Int("count", len(data.Clients)))
	return nil
}

func runClientList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	clients, err := st.ListClients(ctx)
	if err != nil {
		return err
	}
	rendered, err := output.FormatClientList(format, clients)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}
