package normalize

// googleKinds maps Places types to venue kinds.
var googleKinds = map[string]string{
	"art_gallery":       "gallery",
	"art_studio":        "gallery",
	"museum":            "gallery",
	"cafe":              "cafe",
	"coffee_shop":       "cafe",
	"tea_house":         "cafe",
	"bakery":            "cafe",
	"coworking_space":   "coworking",
	"hotel":             "hotel",
	"lodging":           "hotel",
	"bed_and_breakfast": "hotel",
	"guest_house":       "hotel",
	"restaurant":        "restaurant",
	"bar":               "bar",
	"pub":               "bar",
	"wine_bar":          "bar",
	"night_club":        "bar",
	"corporate_office":  "office",
}

// osmKindKeys is the order in which OSM tags are consulted.
var osmKindKeys = []string{"tourism", "amenity", "shop", "office", "craft"}

// osmKinds maps key=value tags to venue kinds. key=* matches any value.
var osmKinds = map[string]string{
	"tourism=gallery":         "gallery",
	"tourism=artwork":         "gallery",
	"shop=art":                "gallery",
	"craft=artist":            "gallery",
	"amenity=arts_centre":     "gallery",
	"amenity=cafe":            "cafe",
	"shop=coffee":             "cafe",
	"amenity=coworking_space": "coworking",
	"office=coworking":        "coworking",
	"tourism=hotel":           "hotel",
	"tourism=guest_house":     "hotel",
	"tourism=hostel":          "hotel",
	"amenity=restaurant":      "restaurant",
	"amenity=bar":             "bar",
	"amenity=pub":             "bar",
	"amenity=biergarten":      "bar",
	"office=*":                "office",
}
