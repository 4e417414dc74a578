package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/audit"
	"github.com/meridianworks/rulegate/internal/engine"
	"github.com/meridianworks/rulegate/internal/store"
	"github.com/meridianworks/rulegate/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the rule catalog against a context file",
	Long:  `Loads an evaluation context from a JSON file, runs one evaluation pass and prints the result as JSON.`,
	RunE:  runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("context", "", "path to the context JSON file (required)")
	evaluateCmd.Flags().String("actor", "", "acting user recorded in the audit trail")
	evaluateCmd.Flags().String("at", "", "pin the evaluation clock (RFC3339)")
	evaluateCmd.MarkFlagRequired("context")
}

// entityDoc is the JSON shape of one entity in a context file. Relations
// nest recursively.
type entityDoc struct {
	Kind      string                `json:"kind"`
	ID        string                `json:"id"`
	Fields    map[string]any        `json:"fields,omitempty"`
	Relations map[string]*entityDoc `json:"relations,omitempty"`
}

type contextFile struct {
	Trigger        string         `json:"trigger"`
	Primary        string         `json:"primary,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
	Confirmed      bool           `json:"confirmed,omitempty"`
	OverrideReason string         `json:"override_reason,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	Entities       []*entityDoc   `json:"entities"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	contextPath, _ := cmd.Flags().GetString("context")
	actor, _ := cmd.Flags().GetString("actor")
	at, _ := cmd.Flags().GetString("at")

	ec, err := loadContextFile(contextPath)
	if err != nil {
		return err
	}
	if at != "" {
		now, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at value: %w", err)
		}
		ec.Now = now
	}

	cfg, logger, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	sink := audit.NewQueuedSink(st, cfg.AuditQueueSize, logger)
	defer sink.Close()

	source := store.NewCachedSource(st, cfg.CacheTTL, logger)
	eng := engine.New(source, st, sink, logNotifier{logger}, logger)

	result, err := eng.Evaluate(cmd.Context(), ec, actor)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// loadContextFile parses a context JSON file into an evaluation context.
func loadContextFile(path string) (*types.Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	var file contextFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("invalid context file: %w", err)
	}
	if file.Trigger == "" {
		return nil, fmt.Errorf("context file must set a trigger")
	}

	ec := types.NewContext(file.Trigger)
	ec.Roles = file.Roles
	ec.Confirmed = file.Confirmed
	ec.OverrideReason = file.OverrideReason
	for name, value := range file.Vars {
		ec.WithVar(name, value)
	}

	for _, doc := range file.Entities {
		entity, err := buildDocument(doc)
		if err != nil {
			return nil, err
		}
		ec.WithEntity(entity)
	}

	if file.Primary != "" {
		primary, err := types.ParseEntityKind(file.Primary)
		if err != nil {
			return nil, err
		}
		ec.Primary = primary
	}

	return ec, nil
}

func buildDocument(doc *entityDoc) (*types.Document, error) {
	kind, err := types.ParseEntityKind(doc.Kind)
	if err != nil {
		return nil, err
	}

	entity := types.NewDocument(kind, doc.ID)
	for name, value := range doc.Fields {
		entity.Set(name, value)
	}
	for name, related := range doc.Relations {
		if related == nil {
			continue
		}
		child, err := buildDocument(related)
		if err != nil {
			return nil, err
		}
		entity.Link(name, child)
	}
	return entity, nil
}

// logNotifier satisfies the engine's notifier by writing delivery requests
// to the log. One-shot CLI runs have no messaging backend to hand off to.
type logNotifier struct {
	log *zap.Logger
}

func (n logNotifier) Notify(recipient, message string, severity types.Severity) {
	n.log.Info("notification requested",
		zap.String("recipient", recipient),
		zap.String("severity", severity.String()),
		zap.String("message", message))
}
