package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smartcrop/sensor-node/internal/model"
)

// Screen is one full display page, one string per row.
type Screen [Rows]string

func center(s string) string {
	s = fit(s)
	return strings.Repeat(" ", (Columns-len(s))/2) + s
}

// SensorPages renders one reading as pages of the centered sensor name followed by up
// to three attribute rows each. Attributes are sorted by name; the node id is omitted.
func SensorPages(r model.Reading) []Screen {
	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		if name == model.NodeKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	title := center(string(r.Sensor))
	var pages []Screen
	for start := 0; start < len(names); start += Rows - 1 {
		page := Screen{title}
		for i, name := range names[start:min(start+Rows-1, len(names))] {
			label := name
			if len(label) > 8 {
				label = label[:8]
			}
			page[i+1] = fmt.Sprintf("%s : %s", label, r.Values[name])
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		pages = append(pages, Screen{title})
	}
	return pages
}

// SnapshotPages renders every reading of a snapshot in the fixed kind order.
func SnapshotPages(snap *model.Snapshot) []Screen {
	var pages []Screen
	for _, kind := range model.Kinds {
		r, ok := snap.Readings[kind]
		if !ok {
			continue
		}
		pages = append(pages, SensorPages(r)...)
	}
	return pages
}

func CountdownScreen(seconds int) Screen {
	return Screen{
		center("Next Reading"),
		center(fmt.Sprintf("in %d", seconds)),
		center("seconds"),
	}
}
