package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// ExportService convierte una respuesta de IA (markdown) en una página HTML imprimible.
// goldmark no emite HTML crudo del texto de entrada.
type ExportService struct {
	md   goldmark.Markdown
	page *template.Template
	now  func() time.Time
}

func NewExportService() *ExportService {
	return &ExportService{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		page: template.Must(template.New("print").Parse(printTemplate)),
		now:  time.Now,
	}
}

func (s *ExportService) Render(content string) (string, error) {
	var body bytes.Buffer
	if err := s.md.Convert([]byte(normalizeNewlines(content)), &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	var out bytes.Buffer
	err := s.page.Execute(&out, struct {
		Body        template.HTML
		GeneratedAt string
	}{
		Body:        template.HTML(body.String()),
		GeneratedAt: s.now().Format("02/01/2006 às 15:04:05"),
	})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return out.String(), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

const printTemplate = `<!DOCTYPE html>
<html lang="pt-br">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>SmartOps AI - Resposta</title>
    <style>
        body { font-family: 'Times New Roman', Times, serif; line-height: 1.6; max-width: 210mm; margin: 0 auto; padding: 20mm; color: #000; font-size: 12pt; }
        .header { text-align: center; border-bottom: 2px solid #000; padding-bottom: 10mm; margin-bottom: 15mm; }
        .header h1 { font-size: 18pt; text-transform: uppercase; letter-spacing: 1px; }
        .content { text-align: justify; }
        .content code { font-family: 'Courier New', monospace; background: #f0f0f0; padding: 1mm 2mm; border: 1px solid #ccc; }
        .content table { border-collapse: collapse; }
        .content th, .content td { border: 1px solid #000; padding: 2mm; }
        .footer { margin-top: 20mm; padding-top: 5mm; border-top: 1px solid #000; font-size: 10pt; text-align: center; }
        .print-btn { display: block; margin: 0 auto 10mm; padding: 3mm 6mm; border: 2px solid #000; background: #fff; font-weight: bold; cursor: pointer; }
        @media print { body { padding: 15mm; font-size: 11pt; } .print-btn { display: none; } }
    </style>
</head>
<body>
    <button class="print-btn" onclick="window.print()">IMPRIMIR DOCUMENTO</button>
    <div class="header">
        <h1>SmartOps AI - Assistente Virtual Wood</h1>
    </div>
    <div class="content">
{{.Body}}
    </div>
    <div class="footer">
        <p><strong>Documento gerado em:</strong> {{.GeneratedAt}}</p>
        <p>SmartOps AI - Wood Plc</p>
    </div>
</body>
</html>
`
