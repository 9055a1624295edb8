package source

import "github.com/artcrm/artcrm/pkg/osm"

// googleQuery is the text search shape for one venue kind.
type googleQuery struct {
	text         string
	includedType string
}

var googleQueries = map[string]googleQuery{
	"gallery":    {text: "art gallery", includedType: "art_gallery"},
	"cafe":       {text: "cafe", includedType: "cafe"},
	"coworking":  {text: "coworking space"},
	"hotel":      {text: "hotel", includedType: "hotel"},
	"restaurant": {text: "restaurant", includedType: "restaurant"},
	"bar":        {text: "bar", includedType: "bar"},
	"office":     {text: "office space"},
}

var osmSelectors = map[string][]osm.Selector{
	"gallery": {
		{Key: "tourism", Value: "gallery"},
		{Key: "shop", Value: "art"},
	},
	"cafe": {
		{Key: "amenity", Value: "cafe"},
	},
	"coworking": {
		{Key: "amenity", Value: "coworking_space"},
		{Key: "office", Value: "coworking"},
	},
	"hotel": {
		{Key: "tourism", Value: "hotel"},
	},
	"restaurant": {
		{Key: "amenity", Value: "restaurant"},
	},
	"bar": {
		{Key: "amenity", Value: "bar"},
		{Key: "amenity", Value: "pub"},
	},
}
