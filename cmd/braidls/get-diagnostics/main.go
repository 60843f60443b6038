package get_diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/braidlang/braidls/pkg/bridge"
	"github.com/braidlang/braidls/pkg/engine"
	"github.com/braidlang/braidls/pkg/vfs"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	pattern   string
	format    string // json, text
	engineCmd string
}

func NewGetDiagnosticsCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "get-diagnostics [glob]",
		Short: "print diagnostics for braid files matching a glob",
	}

	cmd.Flags().StringVar(&me.format, "format", "text", "output format (text, json)")
	cmd.Flags().StringVar(&me.engineCmd, "engine-cmd", "", "command line of the script analysis engine; empty runs style checks only")
	cmd.Args = cobra.ExactArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.pattern = args[0]
		return me.Run(cmd.Context())
	}

	return cmd
}

// nullEngine answers every query with nothing; used when no analysis
// engine is configured.
type nullEngine struct{}

func (nullEngine) Diagnostics(ctx context.Context, path string) ([]engine.Diagnostic, error) {
	return nil, nil
}

func (nullEngine) CompletionsAt(ctx context.Context, path string, offset int) ([]engine.CompletionItem, error) {
	return nil, nil
}

func (nullEngine) QuickInfoAt(ctx context.Context, path string, offset int) (*engine.QuickInfo, error) {
	return nil, nil
}

func (nullEngine) DefinitionAt(ctx context.Context, path string, offset int) ([]engine.DefinitionLocation, error) {
	return nil, nil
}

type reportDiagnostic struct {
	Line         int    `json:"line"`
	Character    int    `json:"character"`
	EndLine      int    `json:"endLine"`
	EndCharacter int    `json:"endCharacter"`
	Severity     int    `json:"severity"`
	Source       string `json:"source,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message"`
}

type fileReport struct {
	Path        string             `json:"path"`
	Diagnostics []reportDiagnostic `json:"diagnostics"`
}

func (me *Handler) Run(ctx context.Context) error {
	logger := zerolog.New(os.Stderr).With().
		Str("component", "braidls").
		Timestamp().
		Logger()
	ctx = logger.WithContext(ctx)

	matches, err := doublestar.FilepathGlob(me.pattern)
	if err != nil {
		return errors.Errorf("expanding glob %q: %w", me.pattern, err)
	}
	if len(matches) == 0 {
		return errors.Errorf("no files match %q", me.pattern)
	}

	store := vfs.NewStore()

	var svc engine.Service = nullEngine{}
	if me.engineCmd != "" {
		parts := strings.Fields(me.engineCmd)
		engineProc := exec.CommandContext(ctx, parts[0], parts[1:]...)
		engineProc.Stderr = os.Stderr
		client, err := engine.NewClient(ctx, engineProc, store)
		if err != nil {
			return errors.Errorf("starting analysis engine: %w", err)
		}
		defer client.Close()
		svc = client
	}

	fs := afero.NewOsFs()
	b := bridge.New(svc, store, fs)

	var errs *multierror.Error
	reports := make([]fileReport, 0, len(matches))

	for _, path := range matches {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			errs = multierror.Append(errs, errors.Errorf("reading %s: %w", path, err))
			continue
		}

		diags := b.Diagnostics(ctx, path, string(data))
		report := fileReport{Path: path, Diagnostics: make([]reportDiagnostic, 0, len(diags))}
		for _, d := range diags {
			report.Diagnostics = append(report.Diagnostics, reportDiagnostic{
				Line:         d.Range.Start.Line,
				Character:    d.Range.Start.Character,
				EndLine:      d.Range.End.Line,
				EndCharacter: d.Range.End.Character,
				Severity:     int(d.Severity),
				Source:       d.Source,
				Code:         d.Code,
				Message:      d.Message,
			})
		}
		reports = append(reports, report)
	}

	switch me.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			errs = multierror.Append(errs, errors.Errorf("encoding report: %w", err))
		}
	case "text":
		for _, report := range reports {
			for _, d := range report.Diagnostics {
				fmt.Printf("%s:%d:%d: %s: %s\n",
					report.Path, d.Line+1, d.Character+1, severityName(d.Severity), d.Message)
			}
		}
	default:
		errs = multierror.Append(errs, errors.Errorf("unknown format %q", me.format))
	}

	return errs.ErrorOrNil()
}

func severityName(severity int) string {
	switch engine.Severity(severity) {
	case engine.SeverityError:
		return "error"
	case engine.SeverityWarning:
		return "warning"
	case engine.SeverityInformation:
		return "information"
	default:
		return "hint"
	}
}
