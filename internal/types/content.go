package types

import "math/rand"

// Voices are the narration voices the speech backend accepts.
var Voices = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck", "Zephyr"}

// DefaultVoice is used when a request omits the voice name.
const DefaultVoice = "Kore"

// ValidVoice reports whether name is a supported narration voice.
func ValidVoice(name string) bool {
	for _, v := range Voices {
		if v == name {
			return true
		}
	}
	return false
}

// NormalizeVoice returns name if valid, otherwise the default voice.
func NormalizeVoice(name string) string {
	if ValidVoice(name) {
		return name
	}
	return DefaultVoice
}

// StoryThemes holds the rotation of story themes per age band. Batch runs
// cycle through these by index so a large run stays varied.
var StoryThemes = map[AgeBand][]string{
	Ages3To5: {
		"friendship", "sharing", "colors", "animals", "family",
		"bedtime", "nature", "kindness", "counting", "seasons",
		"first day of school", "making friends", "helping at home",
		"learning letters", "bath time", "playground fun",
		"pet care", "healthy eating", "feelings", "imagination",
	},
	Ages6To8: {
		"adventure", "courage", "teamwork", "discovery", "helping others",
		"imagination", "problem solving", "science", "space", "ocean",
		"dinosaurs", "sports", "music", "art", "nature exploration",
		"friendship challenges", "new experiences", "fairy tales",
		"superheroes", "mystery solving",
	},
	Ages9To12: {
		"perseverance", "leadership", "empathy", "environment", "history",
		"technology", "creativity", "responsibility", "diversity", "dreams",
		"invention", "ancient civilizations", "space exploration", "coding",
		"entrepreneurship", "social justice", "world cultures",
		"scientific discovery", "time travel", "mythology",
	},
}

// CharacterTypes seed the protagonist when a request leaves it open.
var CharacterTypes = []string{
	"a curious rabbit", "a brave little fox", "a friendly dragon",
	"a clever mouse", "a playful otter", "a gentle bear cub",
	"a young inventor", "a kind-hearted robot", "an adventurous owl",
	"a shy hedgehog", "a cheerful penguin", "a determined turtle",
}

// Settings seed the story location when a request leaves it open.
var Settings = []string{
	"an enchanted forest", "a cozy village", "a seaside town",
	"a mountain meadow", "a magical garden", "a bustling treehouse",
	"a starlit desert", "an island lighthouse", "a snowy valley",
	"a riverside farm", "an old library", "a hidden cave",
}

// MoralLessons are per-band lesson candidates for generated stories.
var MoralLessons = map[AgeBand][]string{
	Ages3To5: {
		"Sharing makes everyone happy",
		"It is good to say please and thank you",
		"Trying new things can be fun",
		"Everyone needs help sometimes",
		"Being gentle is being kind",
		"Telling the truth feels good",
		"Taking turns is fair",
		"A smile can brighten someone's day",
	},
	Ages6To8: {
		"Courage means trying even when you are scared",
		"Teamwork makes hard things possible",
		"Mistakes are how we learn",
		"True friends accept you as you are",
		"Honesty builds trust",
		"Patience brings the best results",
		"Small acts of kindness matter",
		"Curiosity leads to discovery",
	},
	Ages9To12: {
		"Perseverance turns setbacks into progress",
		"Leadership means lifting others up",
		"Empathy helps us understand different views",
		"Our choices shape who we become",
		"Standing up for others takes real courage",
		"Responsibility earns freedom",
		"Differences make a team stronger",
		"Great ideas start with asking questions",
	},
}

// ThemesFor returns the theme rotation for an age band, defaulting to the
// middle band when the band is unknown.
func ThemesFor(age AgeBand) []string {
	if themes, ok := StoryThemes[age]; ok {
		return themes
	}
	return StoryThemes[Ages6To8]
}

// RandomTheme picks a theme for the age band.
func RandomTheme(age AgeBand) string {
	themes := ThemesFor(age)
	return themes[rand.Intn(len(themes))]
}

// RandomCharacterType picks a protagonist seed.
func RandomCharacterType() string {
	return CharacterTypes[rand.Intn(len(CharacterTypes))]
}

// RandomSetting picks a story location seed.
func RandomSetting() string {
	return Settings[rand.Intn(len(Settings))]
}

// RandomMoralLesson picks a lesson for the age band.
func RandomMoralLesson(age AgeBand) string {
	lessons, ok := MoralLessons[age]
	if !ok {
		lessons = MoralLessons[Ages6To8]
	}
	return lessons[rand.Intn(len(lessons))]
}
