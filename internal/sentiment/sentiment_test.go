package sentiment

import "testing"

func TestClassify_KnownLabels(t *testing.T) {
	tests := []struct {
		label string
		icon  string
		color string
		want  string
	}{
		{"positive", "smile", "text-green-500", "Joy/Adoration"},
		{"joy", "smile", "text-green-500", "Joy/Adoration"},
		{"adoration", "smile", "text-green-500", "Joy/Adoration"},
		{"amusement", "laugh", "text-yellow-400", "Amusement"},
		{"anger", "flame", "text-red-600", "Anger"},
		{"awe", "zap", "text-purple-500", "Awe/Surprise"},
		{"surprise", "zap", "text-purple-500", "Awe/Surprise"},
		{"calmness", "cloud", "text-blue-300", "Calmness"},
		{"confusion", "help-circle", "text-gray-500", "Confusion"},
		{"contempt", "thumbs-down", "text-orange-500", "Contempt/Pride"},
		{"pride", "thumbs-down", "text-orange-500", "Contempt/Pride"},
		{"contentment", "coffee", "text-brown-400", "Contentment"},
		{"craving", "utensils", "text-pink-400", "Craving"},
		{"desire", "heart", "text-red-400", "Desire/Love"},
		{"love", "heart", "text-red-400", "Desire/Love"},
		{"disappointment", "cloud-rain", "text-blue-600", "Disappointment/Shame"},
		{"shame", "cloud-rain", "text-blue-600", "Disappointment/Shame"},
		{"distress", "frown", "text-green-700", "Distress/Disgust"},
		{"disgust", "frown", "text-green-700", "Distress/Disgust"},
		{"fear", "alert-triangle", "text-yellow-600", "Fear"},
		{"interest", "eye", "text-cyan-500", "Interest"},
		{"pain", "droplet", "text-blue-500", "Pain/Sadness"},
		{"sadness", "droplet", "text-blue-500", "Pain/Sadness"},
		{"negative", "frown", "text-red-500", "Negative"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := Classify(tt.label)
			if got.Icon != tt.icon || got.Color != tt.color || got.Label != tt.want {
				t.Errorf("Classify(%q) = %+v, want {%s %s %s}", tt.label, got, tt.icon, tt.color, tt.want)
			}
		})
	}

	if len(tests) != len(Labels()) {
		t.Errorf("test table covers %d labels, classifier knows %d", len(tests), len(Labels()))
	}
}

func TestClassify_UnknownIsNeutral(t *testing.T) {
	for _, label := range []string{"", "neutral", "Joy", "JOY", "boredom", " joy", "Adoration/Joy"} {
		if got := Classify(label); got != Neutral {
			t.Errorf("Classify(%q) = %+v, want Neutral", label, got)
		}
	}
	if Neutral.Icon != "meh" || Neutral.Color != "text-yellow-500" || Neutral.Label != "Neutral" {
		t.Errorf("Neutral = %+v", Neutral)
	}
}

func TestFromEmotion(t *testing.T) {
	tests := []struct {
		name      string
		wantLabel string
		wantText  string
	}{
		{"Joy", "joy", "Joy/Adoration"},
		{"Surprise (positive)", "surprise", "Awe/Surprise"},
		{"Surprise (negative)", "surprise", "Awe/Surprise"},
		{"  Sadness ", "sadness", "Pain/Sadness"},
		{"Empathic Pain", "empathic pain", "Neutral"},
		{"Tiredness", "tiredness", "Neutral"},
	}
	for _, tt := range tests {
		label, d := FromEmotion(tt.name)
		if label != tt.wantLabel || d.Label != tt.wantText {
			t.Errorf("FromEmotion(%q) = %q, %q; want %q, %q", tt.name, label, d.Label, tt.wantLabel, tt.wantText)
		}
	}
}
