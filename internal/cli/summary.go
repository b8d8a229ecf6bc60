package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/output"
	"github.com/AndreyAkinshin/hilrun/internal/report"
)

// cmdReport renders an archived summary.json. Without --format the
// execution summary is printed; otherwise the report is written in the
// given format to stdout or --output. Returns 1 when the campaign had
// failures.
func cmdReport(args []string) int {
	if wantsHelp(args) {
		printReportUsage()
		return 0
	}

	var formatName, outPath string
	var inputs []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--format" || arg == "-o" || arg == "--output":
			if i+1 >= len(args) {
				out.ErrorPrefix("report: %s requires a value", arg)
				return errors.ExitConfigError
			}
			if arg == "--format" {
				formatName = args[i+1]
			} else {
				outPath = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--format="):
			formatName = strings.TrimPrefix(arg, "--format=")
		case strings.HasPrefix(arg, "--output="):
			outPath = strings.TrimPrefix(arg, "--output=")
		default:
			inputs = append(inputs, arg)
		}
	}
	if len(inputs) != 1 {
		out.ErrorPrefix("report: expected one summary file")
		printReportUsage()
		return errors.ExitConfigError
	}

	summary, err := readSummary(inputs[0])
	if err != nil {
		out.ErrorPrefix("report: %v", err)
		return errors.ExitRuntimeError
	}

	if formatName == "" {
		out.Println("")
		out.Campaign(summary)
	} else {
		f, err := report.ParseFormat(formatName)
		if err != nil {
			out.ErrorPrefix("report: %v", err)
			return errors.ExitConfigError
		}
		if err := writeReport(outPath, f, summary); err != nil {
			out.ErrorPrefix("report: %v", err)
			return errors.ExitRuntimeError
		}
	}

	if summary.Overall.Failed > 0 || summary.FailedEnvironments > 0 || summary.Interrupted {
		return errors.ExitRuntimeError
	}
	return 0
}

// readSummary reads a JSON campaign summary from path, or from stdin when
// path is "-".
func readSummary(path string) (model.CampaignSummary, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return model.CampaignSummary{}, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var s model.CampaignSummary
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return model.CampaignSummary{}, fmt.Errorf("%s: invalid summary: %w", path, err)
	}
	return s, nil
}

func writeReport(path string, f report.Format, s model.CampaignSummary) error {
	if path == "" {
		return report.Write(os.Stdout, f, s)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Write(file, f, s); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func printReportUsage() {
	w := output.New()
	w.HelpTitle("hilrun report - render an archived campaign summary")
	w.HelpSection("Usage:")
	w.HelpUsage("hilrun report [--format <f>] [-o <file>] <summary.json | ->")
	w.HelpSection("Flags:")
	w.HelpFlag("--format <f>", "json, yaml, csv, text, markdown or html (default: execution summary)", helpFlagWidthShort)
	w.HelpFlag("-o, --output <file>", "Write the report to a file instead of stdout", helpFlagWidthShort)
	w.Println("")
}
