package hunts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ParseFile reads and parses one hunt markdown file. The category is
// taken from the directory the file lives in.
func ParseFile(path, category string) (*Hunt, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from directory scan
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	h, err := ParseHunt(string(data), category)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	h.FilePath = path
	if h.ID == "" {
		h.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return h, nil
}

var (
	tagPattern       = regexp.MustCompile(`#[\w-]+`)
	techniqueInText  = regexp.MustCompile(`T\d{4}(?:\.\d{3})?`)
	submitterPattern = regexp.MustCompile(`\[(.*?)\]`)
)

// ParseHunt extracts a hunt record from markdown content.
//
// Hunt files carry their ID in the first `# ` title, the hypothesis as the
// first substantial body line, and tactic/technique/submitter in the hunt
// table row. Anything it cannot find is left empty rather than failing:
// only a missing hypothesis makes the file unparseable.
func ParseHunt(content, category string) (*Hunt, error) {
	lines := strings.Split(content, "\n")
	h := &Hunt{Category: category}

	for _, line := range lines {
		if strings.HasPrefix(line, "# ") {
			h.ID = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			break
		}
	}

	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "|") {
			continue
		}
		if len(s) > 20 {
			h.Hypothesis = s
			break
		}
	}

	parseHuntTable(lines, h)
	if h.Hypothesis == "" {
		return nil, fmt.Errorf("no hypothesis found")
	}

	tagSet := make(map[string]bool)
	for _, line := range lines {
		for _, tag := range tagPattern.FindAllString(line, -1) {
			tagSet[tag] = true
		}
	}
	for tag := range tagSet {
		h.Tags = append(h.Tags, tag)
	}
	sort.Strings(h.Tags)

	return h, nil
}

// parseHuntTable pulls tactic, technique, and submitter out of the hunt
// summary table. The data row follows a header row containing "Hunt #"
// or "Idea", with columns: id, hypothesis, tactic, notes, tags, submitter.
func parseHuntTable(lines []string, h *Hunt) {
	inTable := false
	for _, line := range lines {
		if strings.Contains(line, "|") && (strings.Contains(line, "Hunt #") || strings.Contains(line, "Idea")) {
			inTable = true
			continue
		}
		if !inTable || !strings.Contains(line, "|") {
			continue
		}
		if strings.Contains(line, "---") {
			continue
		}

		var cells []string
		for _, c := range strings.Split(line, "|") {
			if s := strings.TrimSpace(c); s != "" {
				cells = append(cells, s)
			}
		}
		if len(cells) < 3 {
			continue
		}

		// Some files keep the hypothesis only in the table row.
		if h.Hypothesis == "" && !strings.EqualFold(cells[1], "idea / hypothesis") {
			h.Hypothesis = cells[1]
		}
		if tactic := cells[2]; !strings.EqualFold(tactic, "tactic") {
			h.Tactic = tactic
		}
		searchable := ""
		if len(cells) > 3 {
			searchable += cells[3]
		}
		if len(cells) > 4 {
			searchable += " " + cells[4]
		}
		if m := techniqueInText.FindString(searchable); m != "" {
			h.Technique = m
		}
		if len(cells) > 5 {
			h.Submitter = cells[5]
			if m := submitterPattern.FindStringSubmatch(h.Submitter); m != nil {
				h.Submitter = m[1]
			}
		}
		return
	}
}
