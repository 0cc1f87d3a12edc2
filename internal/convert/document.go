package convert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// documentReaders maps accepted source extensions to pandoc reader names
var documentReaders = map[string]string{
	"fb2":      "fb2",
	"ipynb":    "ipynb",
	"csv":      "csv",
	"csljson":  "csljson",
	"bibtex":   "bibtex",
	"biblatex": "biblatex",
	"json":     "json",
	"markdown": "markdown",
	"md":       "markdown",
	"creole":   "creole",
	"gfm":      "gfm",
	"rst":      "rst",
	"vimwiki":  "vimwiki",
	"docbook":  "docbook",
	"opml":     "opml",
	"org":      "org",
	"textile":  "textile",
	"html":     "html",
	"htm":      "html",
	"jats":     "jats",
	"jira":     "jira",
	"latex":    "latex",
	"tex":      "latex",
	"haddock":  "haddock",
	"twiki":    "twiki",
	"docx":     "docx",
	"odt":      "odt",
	"t2t":      "t2t",
	"epub":     "epub",
	"muse":     "muse",
	"man":      "man",
}

// DocumentInputFormats lists accepted source extensions
var DocumentInputFormats = FormatSet{
	"fb2", "ipynb", "csv", "csljson", "bibtex", "biblatex", "json", "markdown", "md", "creole", "gfm", "rst",
	"vimwiki", "docbook", "opml", "org", "textile", "html", "htm", "jats", "jira", "latex", "tex", "haddock",
	"twiki", "docx", "odt", "t2t", "epub", "muse", "man",
}

// DocumentOutputFormats lists the formats a document can be converted to
var DocumentOutputFormats = FormatSet{
	"gfm", "tei", "muse", "bibtex", "biblatex", "json", "docx", "odt", "pptx", "epub", "epub2", "epub3", "fb2",
	"ipynb", "html", "icml", "s5", "slidy", "docbook", "opml", "latex", "beamer", "context", "texinfo",
	"man", "ms", "markdown", "txt", "rst", "rtf", "asciidoc", "pdf",
}

// documentWriters holds output formats whose pandoc writer differs from the
// format name. An empty writer lets pandoc pick one from the output file.
var documentWriters = map[string]string{
	"txt": "plain",
	"pdf": "",
}

// DocumentConverter converts documents with pandoc
type DocumentConverter struct {
	workspace *Workspace
	pandoc    string
	pdfEngine string
	run       Runner
	logger    *zap.Logger
}

// NewDocumentConverter creates a pandoc backend. pdfEngine may be empty.
func NewDocumentConverter(workspace *Workspace, pandocPath, pdfEngine string, run Runner, logger *zap.Logger) *DocumentConverter {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	if run == nil {
		run = ExecRunner
	}
	return &DocumentConverter{
		workspace: workspace,
		pandoc:    pandocPath,
		pdfEngine: pdfEngine,
		run:       run,
		logger:    logger.Named("document"),
	}
}

func (c *DocumentConverter) Name() string             { return "document" }
func (c *DocumentConverter) InputFormats() FormatSet  { return DocumentInputFormats }
func (c *DocumentConverter) OutputFormats() FormatSet { return DocumentOutputFormats }

// Convert runs pandoc from the source reader to the target writer
func (c *DocumentConverter) Convert(ctx context.Context, sourcePath, targetFormat string) (Result, error) {
	c.logger.Debug("Converting document", zap.String("source", sourcePath), zap.String("target", targetFormat))

	if !DocumentOutputFormats.Contains(targetFormat) {
		return Unsupported(fmt.Sprintf("format %s is not supported to convert to", targetFormat)), nil
	}
	reader, ok := documentReaders[FormatOf(sourcePath)]
	if !ok {
		return Unsupported(fmt.Sprintf("format %s is not supported to convert from", FormatOf(sourcePath))), nil
	}

	newPath := c.workspace.NewFile(targetFormat)
	args := []string{"--from", reader, "--output", newPath}
	writer, custom := documentWriters[targetFormat]
	if !custom {
		writer = targetFormat
	}
	if writer != "" {
		args = append(args, "--to", writer)
	}
	if targetFormat == "pdf" && c.pdfEngine != "" {
		args = append(args, "--pdf-engine", c.pdfEngine)
	}
	args = append(args, sourcePath)

	output, err := c.run(ctx, c.pandoc, args...)
	if err != nil {
		c.workspace.Remove(newPath)

		// A killed run says nothing about the formats
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("run pandoc: %w", ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Warn("Pandoc rejected conversion",
				zap.String("source", sourcePath),
				zap.String("target", targetFormat),
				zap.ByteString("output", output),
			)
			return Unsupported(fmt.Sprintf("pandoc cannot convert %s to %s", reader, targetFormat)), nil
		}
		return Result{}, fmt.Errorf("run pandoc: %w", err)
	}

	c.logger.Info("Converted document", zap.String("source", sourcePath), zap.String("path", newPath))
	return Converted(newPath), nil
}
