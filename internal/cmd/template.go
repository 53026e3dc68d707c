package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
	"github.com/disputekit/disputekit/internal/observability"
	"github.com/disputekit/disputekit/internal/output"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Manage letter templates",
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update templates from a YAML file",
	Long: `Create or update templates listed under "templates:" in a YAML file.

Templates without an id are assigned one. Unknown {{placeholders}} are
reported as warnings; they fail at render time unless supplied as batch
variables.`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplateImport,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplateList,
}

var templatePreviewCmd = &cobra.Command{
	Use:   "preview <template-id>",
	Short: "Render a template with sample or stored client data",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatePreview,
}

var templateRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Pick the best active template for a dispute type",
	Long: `Pick the best active template for a dispute type.

A template written for the exact type wins over a general account
template. With --bureau, a template addressed to that bureau is
preferred over one addressed to all bureaus.`,
	Args: cobra.NoArgs,
	RunE: runTemplateRecommend,
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateImportCmd, templateListCmd, templatePreviewCmd, templateRecommendCmd)

	templateCmd.PersistentFlags().String("output", "table", "Output format: table, json, markdown")
	templateListCmd.Flags().Bool("active", false, "Only list active templates")
	templatePreviewCmd.Flags().String("client", "", "Stored client ID to render for")
	templatePreviewCmd.Flags().String("bureau", "", "Bureau to address (experian, equifax, transunion)")
	templateRecommendCmd.Flags().String("type", "", "Dispute type, e.g. late_payment")
	templateRecommendCmd.Flags().String("bureau", "", "Bureau the letter goes to")
	_ = templateRecommendCmd.MarkFlagRequired("type")
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}
	if len(data.Templates) == 0 {
		return &core.ValidationRejectedError{Field: "templates", Reason: "file contains no templates"}
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	logger := observability.CLILogger
	for i := range data.Templates {
		tpl := &data.Templates[i]
		if err := st.UpsertTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("template %q: %w", tpl.Name, err)
		}
		if unknown := unknownTokens(tpl); len(unknown) > 0 {
			logger.Warn("Template uses tokens outside the catalog",
				zap.String("template_id", tpl.ID),
				zap.Strings("tokens", unknown))
		}
		logger.Info("Template imported", zap.String("template_id", tpl.ID), zap.String("name", tpl.Name))
	}
	return nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	activeOnly, err := cmd.Flags().GetBool("active")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	templates, err := st.ListTemplates(ctx, activeOnly)
	if err != nil {
		return err
	}
	rendered, err := output.NewFormatter(format).FormatTemplates(templates)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

func runTemplatePreview(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	clientID, err := cmd.Flags().GetString("client")
	if err != nil {
		return err
	}
	bureau, err := cmd.Flags().GetString("bureau")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	tpl, err := st.GetTemplate(ctx, args[0])
	if err != nil {
		return err
	}

	var recipient *letter.Recipient
	if clientID != "" || bureau != "" {
		recipient = &letter.Recipient{}
		if bureau != "" {
			recipient.Bureau = core.NormalizeBureau(bureau)
			if !recipient.Bureau.Known() {
				return &core.ValidationRejectedError{Field: "bureau", Reason: "unknown bureau " + bureau}
			}
		}
		if clientID != "" {
			client, err := st.GetClient(ctx, clientID)
			if err != nil {
				return err
			}
			recipient.Client = *client
		}
	}

	renderer, err := newRenderer(ctx, cfg, st)
	if err != nil {
		return err
	}
	rendered, err := output.NewFormatter(format).FormatPreview(renderer.Preview(tpl, recipient))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

func runTemplateRecommend(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	disputeType, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}
	bureauFlag, err := cmd.Flags().GetString("bureau")
	if err != nil {
		return err
	}
	var bureau core.Bureau
	if bureauFlag != "" {
		bureau = core.NormalizeBureau(bureauFlag)
		if !bureau.Known() {
			return &core.ValidationRejectedError{Field: "bureau", Reason: "unknown bureau " + bureauFlag}
		}
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	templates, err := st.ListTemplates(ctx, true)
	if err != nil {
		return err
	}
	tpl, err := letter.Recommend(templates, core.DisputeType(strings.TrimSpace(disputeType)), bureau)
	if err != nil {
		return err
	}
	rendered, err := output.NewFormatter(format).FormatTemplates([]core.Template{*tpl})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

// unknownTokens lists placeholders in tpl that no catalog entry resolves.
func unknownTokens(tpl *core.Template) []string {
	catalog := make(map[string]struct{})
	for _, token := range letter.CatalogTokens() {
		catalog[token] = struct{}{}
	}

	var unknown []string
	for _, token := range letter.ExtractPlaceholders(tpl.Subject + "\n" + tpl.Body) {
		if _, ok := catalog[token]; !ok {
			unknown = append(unknown, token)
		}
	}
	return unknown
}
