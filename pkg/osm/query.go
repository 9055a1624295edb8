package osm

import (
	"fmt"
	"strings"
)

// Selector is one tag filter, e.g. tourism=gallery.
type Selector struct {
	Key   string
	Value string
}

func (s Selector) String() string {
	return s.Key + "=" + s.Value
}

func (s Selector) filter() string {
	return fmt.Sprintf(`["%s"="%s"]`, escape(s.Key), escape(s.Value))
}

// AroundQuery selects nodes, ways and relations matching sel within radius
// meters of a point.
func AroundQuery(sel Selector, lat, lon, radiusMeters float64, timeoutSecs int) string {
	scope := fmt.Sprintf("(around:%.0f,%.6f,%.6f)", radiusMeters, lat, lon)
	return build(sel, "", scope, timeoutSecs)
}

// AreaQuery selects elements matching sel inside the administrative area
// named city (admin levels 4 through 8).
func AreaQuery(sel Selector, city string, timeoutSecs int) string {
	area := fmt.Sprintf(`area["name"="%s"]["boundary"="administrative"]["admin_level"~"^[4-8]$"]->.searchArea;`, escape(city))
	return build(sel, area, "(area.searchArea)", timeoutSecs)
}

func build(sel Selector, prelude, scope string, timeoutSecs int) string {
	if timeoutSecs <= 0 {
		timeoutSecs = 25
	}
	f := sel.filter()
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", timeoutSecs)
	if prelude != "" {
		b.WriteString(prelude)
		b.WriteByte('\n')
	}
	b.WriteString("(\n")
	for _, typ := range []string{"node", "way", "relation"} {
		fmt.Fprintf(&b, "  %s%s%s;\n", typ, f, scope)
	}
	b.WriteString(");\nout center tags;\n")
	return b.String()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
