package domain

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

// DefaultExportExclusions are the message columns left out of record exports
// unless the caller asks for an unsafe export.
var DefaultExportExclusions = []string{
	"abuse_report_id",
	"delta",
	"message",
	"something",
	"updated_at",
	"attachment_file_size",
	"attachment_file_name",
	"attachment_height",
	"attachment_width",
	"attachment_updated_at",
}

// ExportOptions controls which columns ToXML writes
type ExportOptions struct {
	// Except lists extra columns to drop
	Except []string
	// Unsafe disables DefaultExportExclusions
	Unsafe bool
}

type exportField struct {
	name  string
	kind  string // xml type attribute, empty for strings
	value string
	null  bool
}

// ToXML renders the message record as an XML document with dasherized column names
func (m *Message) ToXML(opts ExportOptions) ([]byte, error) {
	except := make(map[string]bool, len(DefaultExportExclusions)+len(opts.Except))
	if !opts.Unsafe {
		for _, name := range DefaultExportExclusions {
			except[name] = true
		}
	}
	for _, name := range opts.Except {
		except[name] = true
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "message"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, f := range m.exportFields() {
		if except[f.name] {
			continue
		}
		el := xml.StartElement{Name: xml.Name{Local: strings.ReplaceAll(f.name, "_", "-")}}
		if f.kind != "" {
			el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: f.kind})
		}
		if f.null {
			el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: "nil"}, Value: "true"})
		}
		if err := enc.EncodeToken(el); err != nil {
			return nil, err
		}
		if !f.null {
			if err := enc.EncodeToken(xml.CharData(f.value)); err != nil {
				return nil, err
			}
		}
		if err := enc.EncodeToken(el.End()); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Message) exportFields() []exportField {
	fields := []exportField{
		intField("id", &m.ID),
		intField("abuse_report_id", m.AbuseReportID),
		intField("conversation_id", &m.ConversationID),
		intField("user_id", &m.UserID),
	}

	var a Attachment
	if m.Attachment != nil {
		a = *m.Attachment
	}
	hasFile := m.Attachment != nil
	fields = append(fields,
		exportField{name: "attachment_content_type", value: a.ContentType, null: !hasFile},
		exportField{name: "attachment_file_name", value: a.FileName, null: !hasFile},
		exportField{name: "attachment_file_size", kind: "integer", value: strconv.FormatInt(a.FileSize, 10), null: !hasFile},
		optIntField("attachment_height", a.Height),
		optIntField("attachment_width", a.Width),
		timeField("attachment_updated_at", a.UpdatedAt, !hasFile),
		exportField{name: "message", value: m.Body},
		exportField{name: "message_html", value: m.BodyHTML},
		exportField{name: "system_message", kind: "boolean", value: strconv.FormatBool(m.SystemMessage)},
		timeField("created_at", m.CreatedAt, false),
		timeField("updated_at", m.UpdatedAt, false),
	)
	return fields
}

func intField(name string, v *int64) exportField {
	if v == nil {
		return exportField{name: name, kind: "integer", null: true}
	}
	return exportField{name: name, kind: "integer", value: strconv.FormatInt(*v, 10)}
}

func optIntField(name string, v *int) exportField {
	if v == nil {
		return exportField{name: name, kind: "integer", null: true}
	}
	return exportField{name: name, kind: "integer", value: strconv.Itoa(*v)}
}

func timeField(name string, t time.Time, null bool) exportField {
	if null || t.IsZero() {
		return exportField{name: name, kind: "datetime", null: true}
	}
	return exportField{name: name, kind: "datetime", value: t.UTC().Format(time.RFC3339)}
}
