package syncdata

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jivehq/jive/internal/model"
)

// Format selects the on-disk representation of a sync file.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

var ErrUnknownFormat = errors.New("unknown sync format")

// ParseFormat accepts the format names and their common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// formatForPath infers the format from a file extension.
func formatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".csv":
		return FormatCSV, true
	}
	return "", false
}

func (f Format) ext() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	case FormatCSV:
		return "csv"
	}
	return "json"
}

// fileItem is the on-disk shape of one work item. It captures every stored
// field except the embedding vector, which is recomputed on import.
type fileItem struct {
	ID                 string     `json:"id" yaml:"id"`
	ItemType           string     `json:"item_type" yaml:"item_type"`
	Title              string     `json:"title" yaml:"title"`
	Description        string     `json:"description,omitempty" yaml:"description,omitempty"`
	Status             string     `json:"status" yaml:"status"`
	Priority           string     `json:"priority" yaml:"priority"`
	ParentID           *string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Dependencies       []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	SequenceNumber     string     `json:"sequence_number" yaml:"sequence_number"`
	OrderIndex         int64      `json:"order_index" yaml:"order_index"`
	ProgressPercentage float64    `json:"progress_percentage" yaml:"progress_percentage"`
	Tags               []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Metadata           string     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt          time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" yaml:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// syncFile is the envelope written by json and yaml exports.
type syncFile struct {
	Namespace  string     `json:"namespace" yaml:"namespace"`
	ExportedAt time.Time  `json:"exported_at" yaml:"exported_at"`
	Items      []fileItem `json:"items" yaml:"items"`
}

func toFileItem(w *model.WorkItem) fileItem {
	return fileItem{
		ID:                 w.ID,
		ItemType:           string(w.ItemType),
		Title:              w.Title,
		Description:        w.Description,
		Status:             string(w.Status),
		Priority:           string(w.Priority),
		ParentID:           w.ParentID,
		Dependencies:       w.Dependencies,
		SequenceNumber:     w.SequenceNumber,
		OrderIndex:         w.OrderIndex,
		ProgressPercentage: w.ProgressPercentage,
		Tags:               w.Tags,
		AcceptanceCriteria: w.AcceptanceCriteria,
		Metadata:           w.Metadata,
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
		CompletedAt:        w.CompletedAt,
	}
}

// workItem validates the record and converts it to the storage shape.
func (f fileItem) workItem() (*model.WorkItem, error) {
	if f.ID == "" {
		return nil, errors.New("missing id")
	}
	if f.Title == "" {
		return nil, fmt.Errorf("item %s: missing title", f.ID)
	}
	itemType := model.ItemType(f.ItemType)
	if !itemType.Valid() {
		return nil, fmt.Errorf("item %s: invalid item type %q", f.ID, f.ItemType)
	}
	status := model.Status(f.Status)
	if f.Status == "" {
		status = model.StatusNotStarted
	} else if !status.Valid() {
		return nil, fmt.Errorf("item %s: invalid status %q", f.ID, f.Status)
	}
	priority := model.Priority(f.Priority)
	if f.Priority == "" {
		priority = model.PriorityMedium
	} else if !priority.Valid() {
		return nil, fmt.Errorf("item %s: invalid priority %q", f.ID, f.Priority)
	}
	if f.ProgressPercentage < 0 || f.ProgressPercentage > 100 {
		return nil, fmt.Errorf("item %s: progress %v out of range", f.ID, f.ProgressPercentage)
	}

	item := &model.WorkItem{
		ID:                 f.ID,
		ItemType:           itemType,
		Title:              f.Title,
		Description:        f.Description,
		Status:             status,
		Priority:           priority,
		ParentID:           f.ParentID,
		Dependencies:       f.Dependencies,
		SequenceNumber:     f.SequenceNumber,
		OrderIndex:         f.OrderIndex,
		ProgressPercentage: f.ProgressPercentage,
		Tags:               f.Tags,
		AcceptanceCriteria: f.AcceptanceCriteria,
		Metadata:           f.Metadata,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
		CompletedAt:        f.CompletedAt,
	}
	if item.Dependencies == nil {
		item.Dependencies = []string{}
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.AcceptanceCriteria == nil {
		item.AcceptanceCriteria = []string{}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	return item, nil
}

func encodeItems(format Format, namespace string, items []*model.WorkItem) ([]byte, error) {
	file := syncFile{
		Namespace:  namespace,
		ExportedAt: time.Now().UTC(),
		Items:      make([]fileItem, 0, len(items)),
	}
	for _, item := range items {
		file.Items = append(file.Items, toFileItem(item))
	}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode sync file: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(file)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sync file: %w", err)
		}
		return data, nil
	case FormatMarkdown:
		return encodeMarkdown(file)
	case FormatCSV:
		return encodeCSV(file.Items)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func decodeItems(format Format, data []byte) ([]fileItem, error) {
	switch format {
	case FormatJSON:
		var file syncFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse sync file: %w", err)
		}
		return file.Items, nil
	case FormatYAML:
		var file syncFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse sync file: %w", err)
		}
		return file.Items, nil
	case FormatMarkdown:
		return decodeMarkdown(data)
	case FormatCSV:
		return decodeCSV(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// encodeMarkdown writes one front-matter block per item with the description
// as the body. Descriptions containing a bare "---" line will not survive a
// round trip.
func encodeMarkdown(file syncFile) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Work items: %s\n", file.Namespace)
	fmt.Fprintf(&b, "Exported %s\n", file.ExportedAt.Format(time.RFC3339))

	for _, item := range file.Items {
		head := item
		head.Description = ""
		data, err := yaml.Marshal(head)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sync file: %w", err)
		}
		b.WriteString("\n---\n")
		b.Write(data)
		b.WriteString("---\n")
		if item.Description != "" {
			b.WriteString("\n" + item.Description + "\n")
		}
	}
	return b.Bytes(), nil
}

func decodeMarkdown(data []byte) ([]fileItem, error) {
	var items []fileItem
	var front []string
	var body []string
	inFront := false
	seenFront := false

	flush := func() error {
		if !seenFront {
			return nil
		}
		var item fileItem
		if err := yaml.Unmarshal([]byte(strings.Join(front, "\n")), &item); err != nil {
			return fmt.Errorf("failed to parse sync file: %w", err)
		}
		if desc := strings.TrimSpace(strings.Join(body, "\n")); desc != "" {
			item.Description = desc
		}
		items = append(items, item)
		front, body = nil, nil
		seenFront = false
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimRight(line, " \t") == "---":
			if inFront {
				inFront = false
				seenFront = true
			} else {
				if err := flush(); err != nil {
					return nil, err
				}
				inFront = true
			}
		case inFront:
			front = append(front, line)
		case seenFront:
			body = append(body, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse sync file: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return items, nil
}

var csvHeader = []string{
	"id", "item_type", "title", "description", "status", "priority",
	"parent_id", "dependencies", "sequence_number", "order_index",
	"progress_percentage", "tags", "acceptance_criteria", "metadata",
	"created_at", "updated_at", "completed_at",
}

// listSep joins list fields inside a csv cell. Values containing it will not
// survive a round trip.
const listSep = "|"

func encodeCSV(items []fileItem) ([]byte, error) {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to encode sync file: %w", err)
	}
	for _, item := range items {
		parent := ""
		if item.ParentID != nil {
			parent = *item.ParentID
		}
		completed := ""
		if item.CompletedAt != nil {
			completed = item.CompletedAt.Format(time.RFC3339Nano)
		}
		record := []string{
			item.ID, item.ItemType, item.Title, item.Description,
			item.Status, item.Priority, parent,
			strings.Join(item.Dependencies, listSep),
			item.SequenceNumber,
			strconv.FormatInt(item.OrderIndex, 10),
			strconv.FormatFloat(item.ProgressPercentage, 'f', -1, 64),
			strings.Join(item.Tags, listSep),
			strings.Join(item.AcceptanceCriteria, listSep),
			item.Metadata,
			item.CreatedAt.Format(time.RFC3339Nano),
			item.UpdatedAt.Format(time.RFC3339Nano),
			completed,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to encode sync file: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode sync file: %w", err)
	}
	return b.Bytes(), nil
}

func decodeCSV(data []byte) ([]fileItem, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse sync file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.TrimSpace(name)] = i
	}
	cell := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var items []fileItem
	for _, record := range records[1:] {
		item := fileItem{
			ID:                 cell(record, "id"),
			ItemType:           cell(record, "item_type"),
			Title:              cell(record, "title"),
			Description:        cell(record, "description"),
			Status:             cell(record, "status"),
			Priority:           cell(record, "priority"),
			SequenceNumber:     cell(record, "sequence_number"),
			Dependencies:       splitList(cell(record, "dependencies")),
			Tags:               splitList(cell(record, "tags")),
			AcceptanceCriteria: splitList(cell(record, "acceptance_criteria")),
			Metadata:           cell(record, "metadata"),
		}
		if v := cell(record, "parent_id"); v != "" {
			item.ParentID = &v
		}
		if v := cell(record, "order_index"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse sync file: bad order_index %q: %w", v, err)
			}
			item.OrderIndex = n
		}
		if v := cell(record, "progress_percentage"); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse sync file: bad progress %q: %w", v, err)
			}
			item.ProgressPercentage = n
		}
		if t, ok := parseCSVTime(cell(record, "created_at")); ok {
			item.CreatedAt = t
		}
		if t, ok := parseCSVTime(cell(record, "updated_at")); ok {
			item.UpdatedAt = t
		}
		if t, ok := parseCSVTime(cell(record, "completed_at")); ok {
			item.CompletedAt = &t
		}
		items = append(items, item)
	}
	return items, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}

func parseCSVTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
