package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExportOptions selects the export format.
type ExportOptions struct {
	Format          string  `json:"format"` // html or md
	IncludeMetadata bool    `json:"include_metadata"`
	Template        *string `json:"template,omitempty"`
}

const htmlPage = `<!DOCTYPE html>
<html lang="%s">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
               line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; }
        h1, h2, h3 { color: #333; }
        p { margin-bottom: 1em; }
    </style>
</head>
<body>
    %s
</body>
</html>`

var markdownReplacer = strings.NewReplacer(
	"<p>", "",
	"</p>", "\n\n",
	"<br>", "\n",
	"<strong>", "**",
	"</strong>", "**",
	"<em>", "_",
	"</em>", "_",
)

// Render converts editor HTML content to the requested format.
func (s *Store) Render(content string, opts ExportOptions) (string, error) {
	switch strings.ToLower(opts.Format) {
	case "html":
		return fmt.Sprintf(htmlPage, s.language, "Clareza Document", content), nil
	case "md", "markdown":
		return markdownReplacer.Replace(content), nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrExport, opts.Format)
	}
}

// Export renders content and writes it to out.
func (s *Store) Export(content string, opts ExportOptions, out string) (*File, error) {
	rendered, err := s.Render(content, opts)
	if err != nil {
		return nil, err
	}
	abs, err := Canonicalize(out)
	if err != nil {
		return nil, err
	}
	if isEnvelope(abs) || strings.Contains(abs, string(filepath.Separator)+VersionsDirName+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: refusing to overwrite %s", ErrExport, abs)
	}
	if err := atomicWrite(abs, []byte(rendered)); err != nil {
		return nil, err
	}
	s.log.Info("document exported", map[string]any{"path": abs, "format": opts.Format})
	return &File{Path: abs}, nil
}
