package app

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"promptforge/pkg/domain"
)

// BuildUploadContext converts uploaded files into plain-text entries for the
// prompt builder. PDF and HTML uploads have their text extracted; anything
// else is treated as plain text. Files that cannot be decoded are skipped
// with a warning rather than failing the whole generation.
func BuildUploadContext(files []domain.UploadedFile) []string {
	entries := make([]string, 0, len(files))
	for _, file := range files {
		data, mimeType, err := decodeUpload(file)
		if err != nil {
			slog.Warn("skipping unreadable upload", "file", file.Name, "error", err)
			continue
		}
		var text string
		switch {
		case mimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(file.Name), ".pdf"):
			text, err = extractPDFText(data)
		case mimeType == "text/html" || strings.HasSuffix(strings.ToLower(file.Name), ".html"):
			text, err = extractHTMLText(data)
		default:
			text = string(data)
		}
		if err != nil {
			slog.Warn("skipping upload with unextractable text", "file", file.Name, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		entries = append(entries, fmt.Sprintf("--- %s ---\n%s", file.Name, text))
	}
	return entries
}

// decodeUpload returns the raw bytes and MIME type of an upload. Content is
// either a data URL or plain text.
func decodeUpload(file domain.UploadedFile) ([]byte, string, error) {
	content := file.Content
	if !strings.HasPrefix(content, "data:") {
		return []byte(content), file.Type, nil
	}
	meta, payload, found := strings.Cut(content[len("data:"):], ",")
	if !found {
		return nil, "", fmt.Errorf("malformed data url")
	}
	mimeType := file.Type
	if head, _, _ := strings.Cut(meta, ";"); head != "" {
		mimeType = head
	}
	if !strings.Contains(meta, "base64") {
		return []byte(payload), mimeType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, mimeType, nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return sb.String(), nil
}

func extractHTMLText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			sb.WriteString("\n")
		}
	}
	walk(doc)
	return sb.String(), nil
}
