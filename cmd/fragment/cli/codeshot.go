package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofragment/fragment/internal/codeshot"
)

type codeshotFlags struct {
	output      string
	format      string
	theme       string
	language    string
	options     string
	width       int
	lineNumbers bool
	highlight   []int
}

func newCodeshotCmd() *cobra.Command {
	var f codeshotFlags

	cmd := &cobra.Command{
		Use:   "codeshot <file|->",
		Short: "Render a source file to an image locally",
		Long: `Render a source file (or stdin with "-") to PNG, JPEG or SVG using the same
renderer as the API. Requires a local Chrome or Chromium.

--options takes a JSON object in the API's request shape, or @path to read
it from a file. Individual flags override it.`,
		Example: `  fragment codeshot main.go
  fragment codeshot main.go --theme dracula --format svg -o main.svg
  cat query.sql | fragment codeshot - --language sql --highlight 3,4
  fragment codeshot handler.go --options '{"window":"browser","padding":40}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCodeshotRequest(cmd, args[0], f)
			if err != nil {
				return err
			}
			return runCodeshot(cmd.Context(), cmd.ErrOrStderr(), args[0], f.output, req)
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file (default: <file>.<format>, stdout for -)")
	cmd.Flags().StringVar(&f.format, "format", "", "Output format: png, jpeg or svg")
	cmd.Flags().StringVar(&f.theme, "theme", "", "Theme: light, dark, dracula, monokai or solarized")
	cmd.Flags().StringVar(&f.language, "language", "", "Language for highlighting (default: from the file name)")
	cmd.Flags().StringVar(&f.options, "options", "", "JSON options object, or @file")
	cmd.Flags().IntVar(&f.width, "width", 0, "Image width in pixels")
	cmd.Flags().BoolVar(&f.lineNumbers, "line-numbers", true, "Show line numbers")
	cmd.Flags().IntSliceVar(&f.highlight, "highlight", nil, "Line numbers to highlight")

	return cmd
}

// buildCodeshotRequest reads the source and layers defaults, --options and
// explicit flags, in that order.
func buildCodeshotRequest(cmd *cobra.Command, src string, f codeshotFlags) (*codeshot.Request, error) {
	var (
		code []byte
		err  error
	)
	if src == "-" {
		code, err = io.ReadAll(cmd.InOrStdin())
	} else {
		code, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	req := codeshot.NewRequest()
	if f.options != "" {
		data := []byte(f.options)
		if strings.HasPrefix(f.options, "@") {
			if data, err = os.ReadFile(f.options[1:]); err != nil {
				return nil, fmt.Errorf("read options: %w", err)
			}
		}
		if req.Options, err = codeshot.ParseOptions(data); err != nil {
			return nil, cliError(err)
		}
	}
	req.Code = string(code)

	if src != "-" && req.Developer.Path == codeshot.DefaultOptions().Developer.Path {
		req.Developer.Path = filepath.Base(src)
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		req.Output.Format = codeshot.Format(strings.ToLower(f.format))
	}
	if flags.Changed("theme") {
		req.Theme = f.theme
	}
	if flags.Changed("language") {
		req.Developer.Language = f.language
	}
	if flags.Changed("width") {
		req.Output.Width = f.width
	}
	if flags.Changed("line-numbers") {
		req.LineNumbers = f.lineNumbers
	}
	if flags.Changed("highlight") {
		req.Highlight = f.highlight
	}
	return req, nil
}

// outputPath picks where the image goes. An empty result means stdout.
func outputPath(src, output string, format codeshot.Format) string {
	if output != "" || src == "-" {
		if output == "-" {
			return ""
		}
		return output
	}
	return src + "." + string(format)
}

func runCodeshot(ctx context.Context, errOut io.Writer, src, output string, req *codeshot.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newCLILogger(cfg, false)

	renderer := codeshot.NewRenderer(codeshot.Config{
		PoolSize:      1,
		RenderTimeout: cfg.Codeshot.RenderTimeout,
		ChromePath:    cfg.Codeshot.ChromePath,
		NoSandbox:     cfg.Codeshot.NoSandbox,
	}, logger)
	defer renderer.Close()

	img, err := renderer.Render(ctx, req)
	if err != nil {
		return cliError(err)
	}

	path := outputPath(src, output, req.Output.Format)
	if path == "" {
		_, err := os.Stdout.Write(img.Data)
		return err
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Fprintf(errOut, "Wrote %s (%s, %d bytes)\n", path, img.ContentType(), len(img.Data))
	return nil
}
