// Package sentiment maps sentiment and emotion labels to dashboard display descriptors.
package sentiment

import "strings"

// Descriptor is what the dashboard needs to render a sentiment badge.
// Icon names follow the lucide icon set used by the UI.
type Descriptor struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Label string `json:"label"`
}

var (
	joy            = Descriptor{Icon: "smile", Color: "text-green-500", Label: "Joy/Adoration"}
	amusement      = Descriptor{Icon: "laugh", Color: "text-yellow-400", Label: "Amusement"}
	anger          = Descriptor{Icon: "flame", Color: "text-red-600", Label: "Anger"}
	awe            = Descriptor{Icon: "zap", Color: "text-purple-500", Label: "Awe/Surprise"}
	calmness       = Descriptor{Icon: "cloud", Color: "text-blue-300", Label: "Calmness"}
	confusion      = Descriptor{Icon: "help-circle", Color: "text-gray-500", Label: "Confusion"}
	contempt       = Descriptor{Icon: "thumbs-down", Color: "text-orange-500", Label: "Contempt/Pride"}
	contentment    = Descriptor{Icon: "coffee", Color: "text-brown-400", Label: "Contentment"}
	craving        = Descriptor{Icon: "utensils", Color: "text-pink-400", Label: "Craving"}
	desire         = Descriptor{Icon: "heart", Color: "text-red-400", Label: "Desire/Love"}
	disappointment = Descriptor{Icon: "cloud-rain", Color: "text-blue-600", Label: "Disappointment/Shame"}
	distress       = Descriptor{Icon: "frown", Color: "text-green-700", Label: "Distress/Disgust"}
	fear           = Descriptor{Icon: "alert-triangle", Color: "text-yellow-600", Label: "Fear"}
	interest       = Descriptor{Icon: "eye", Color: "text-cyan-500", Label: "Interest"}
	pain           = Descriptor{Icon: "droplet", Color: "text-blue-500", Label: "Pain/Sadness"}
	negative       = Descriptor{Icon: "frown", Color: "text-red-500", Label: "Negative"}

	// Neutral is returned for every label outside the known set.
	Neutral = Descriptor{Icon: "meh", Color: "text-yellow-500", Label: "Neutral"}
)

var byLabel = map[string]Descriptor{
	"positive":       joy,
	"joy":            joy,
	"adoration":      joy,
	"amusement":      amusement,
	"anger":          anger,
	"awe":            awe,
	"surprise":       awe,
	"calmness":       calmness,
	"confusion":      confusion,
	"contempt":       contempt,
	"pride":          contempt,
	"contentment":    contentment,
	"craving":        craving,
	"desire":         desire,
	"love":           desire,
	"disappointment": disappointment,
	"shame":          disappointment,
	"distress":       distress,
	"disgust":        distress,
	"fear":           fear,
	"interest":       interest,
	"pain":           pain,
	"sadness":        pain,
	"negative":       negative,
}

// Coarse sentiments attached to assistant replies.
const (
	Positive = "positive"
	Negative = "negative"
)

// Classify returns the descriptor for label. Matching is exact.
func Classify(label string) Descriptor {
	if d, ok := byLabel[label]; ok {
		return d
	}
	return Neutral
}

// Labels lists every recognised label.
func Labels() []string {
	out := make([]string, 0, len(byLabel))
	for label := range byLabel {
		out = append(out, label)
	}
	return out
}

// FromEmotion normalizes an expression-model emotion name such as
// "Surprise (positive)" or "Joy" into a label and classifies it.
func FromEmotion(name string) (string, Descriptor) {
	label := strings.ToLower(strings.TrimSpace(name))
	if i := strings.Index(label, "("); i >= 0 {
		label = strings.TrimSpace(label[:i])
	}
	return label, Classify(label)
}
