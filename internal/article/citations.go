package article

import (
	"regexp"
	"strconv"

	"github.com/dart-insight/storm-report/internal/model"
)

var citationMarkerPattern = regexp.MustCompile(`\[(\d+)\]`)

// remapCitations replaces every local [i] marker in body (i is 1-based,
// indexing into evidence in the order passed to the drafting prompt) with
// the passage's global url_to_unified_index marker. An out-of-range local
// index, or a URL with no assigned global index, is stripped silently —
// this mapping is the sole mechanism for citation stability across
// sections.
func remapCitations(body string, evidence []scoredPassage, table *model.InformationTable) string {
	if table == nil {
		return citationMarkerPattern.ReplaceAllString(body, "")
	}
	return citationMarkerPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := citationMarkerPattern.FindStringSubmatch(match)
		local, err := strconv.Atoi(sub[1])
		if err != nil || local < 1 || local > len(evidence) {
			return ""
		}

		url := evidence[local-1].passage.URL
		global, ok := table.URLToUnifiedIndex[url]
		if !ok {
			return ""
		}

		return "[" + strconv.Itoa(global) + "]"
	})
}
