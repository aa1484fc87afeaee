package excise

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Hint is the coarse product type that drives classification.
type Hint string

const (
	HintUnknown      Hint = ""
	HintSpirits      Hint = "spirits"
	HintBeer         Hint = "beer"
	HintWine         Hint = "wine"
	HintIntermediate Hint = "intermediate"
	HintNonAlcoholic Hint = "non_alcoholic"
)

var hintAliases = map[string]Hint{
	"spirits":        HintSpirits,
	"spirit":         HintSpirits,
	"ethyl_alcohol":  HintSpirits,
	"liqueur":        HintSpirits,
	"beer":           HintBeer,
	"wine":           HintWine,
	"sparkling":      HintWine,
	"sparkling_wine": HintWine,
	"intermediate":   HintIntermediate,
	"fortified":      HintIntermediate,
	"non_alcoholic":  HintNonAlcoholic,
	"non_alcohol":    HintNonAlcoholic,
	"none":           HintNonAlcoholic,
}

// ParseHint resolves an explicit product type hint supplied by the caller.
func ParseHint(value string) (Hint, bool) {
	h, ok := hintAliases[strings.ToLower(strings.TrimSpace(value))]
	return h, ok
}

var (
	forcedWineKeywords = []string{"acediano"}

	spiritsKeywords = []string{
		"vodka", "degtine", "spiritus", "spirytus", "whisky", "viskis", "whiskey", "bourbon", "scotch",
		"rum", "romas", "rhum", "gin", "dzinas", "tequila", "tekila", "brandy", "brendis",
		"cognac", "konjakas", "armagnac", "absinthe", "absentas", "liqueur", "likeris", "likor", "likieris",
		"spirituose", "bitter", "balzams", "trauktine", "nalewka", "nastoyka", "aquavit", "grappa",
		"calvados", "jagermeister", "st germain", "unicum",
		"laphroaig", "barcelo", "glen grant", "fernet", "old pulteney",
		"glendronach", "corazon", "frapin", "crown royal", "bunnahabhain",
		"oban", "tomatin", "sheridans",
		"carolans", "irish cream", "cream liqueur", "baileys", "kahlua", "amaretto", "sambuca", "passoa",
		"dubonnet", "vermouth", "vermutas", "aperitif", "aperityvas", "martini rosso", "martini bianco",
		"campari", "aperol", "cynar", "punt e mes",
	}

	// glassStems match word prefixes, so "glasses" and "taurės" count.
	glassStems = []string{
		"glas", "taure", "stiklin", "goblet", "bokal", "decanter", "dekanter",
		"spiegelau", "schott", "ravenscroft", "orrefors",
	}

	// glasswareOnlyKeywords mark glassware for transport weight without
	// overriding the product hint.
	glasswareOnlyKeywords = []string{"nordic"}

	nonProductKeywords = []string{
		"palette", "palete", "gift box", "giftbox", "gift-box", "empty box", "wooden box", "wood box",
		"packaging", "pakuote", "dezute",
	}

	beerKeywords = []string{
		"beer", "alus", "bier", "biere", "cerveza", "birra", "olu", "lager", "ale", "stout",
		"pilsner", "ipa", "porter", "saison", "gose", "sour", "gira",
	}

	nonAlcoholicKeywords = []string{
		"alc free", "alcohol free", "non alcoholic", "sans alcool", "alkoholfrei", "sin alcohol",
		"alcoholvrije", "alcoholvrij",
	}

	sparklingKeywords = []string{
		"champagne", "sampanas", "champagner", "prosecco", "cava", "sekt", "spumante", "frizzante",
		"asti", "sparkling", "putojantis", "cremant", "mousseux", "franciacorta", "brut", "extra brut",
		"louis roederer", "roederer", "moet", "veuve clicquot", "dom perignon", "krug", "bollinger",
		"pol roger", "taittinger", "perrier jouet", "mumm", "piper heidsieck", "lanson",
	}

	sparklingExceptions = []string{"blanc sec", "rouge sec", "bergerac", "mousserend"}

	intermediateKeywords = []string{
		"port", "porto", "portveinas", "sherry", "cheresas", "xeres", "jerez", "marsala", "madeira",
		"ratafia", "spirituotas vynas", "fortified wine",
	}

	wineKeywords = []string{
		"wine", "vynas", "wein", "vin", "vino", "rose", "rosado", "blanc", "blanco", "white", "bianco",
		"rouge", "rosso", "red", "tinto", "cuvee", "aop", "aoc", "doc", "sidras", "cider", "midus", "mead", "sake",
		"amarone", "barolo", "barbaresco", "brunello", "chianti", "primitivo", "sangiovese", "nebbiolo",
		"montepulciano", "barbera", "dolcetto", "valpolicella", "soave", "pinot grigio", "ripasso",
		"bordeaux", "burgundy", "bourgogne", "rhone", "loire", "alsace", "languedoc", "provence",
		"chablis", "sancerre", "pouilly", "muscadet", "cotes du rhone", "chateauneuf", "bergerac",
		"rioja", "ribera del duero", "priorat", "rias baixas", "rueda", "jumilla", "toro",
		"riesling", "gewurztraminer", "spatburgunder", "dornfelder", "muller thurgau",
		"malbec", "cabernet", "merlot", "syrah", "shiraz", "grenache", "tempranillo", "garnacha",
		"chardonnay", "sauvignon", "pinot noir", "pinot blanc", "viognier", "chenin blanc",
	}
)

// DetectHint derives the product type hint from a free-text product name.
// Spirits keywords win over everything else, then packaging and glassware,
// then beer, alcohol-free markers, sparkling wine, fortified products and
// finally still wine.
func DetectHint(name string) Hint {
	text := foldText(name)
	if text == "" {
		return HintUnknown
	}
	switch {
	case containsAny(text, forcedWineKeywords):
		return HintWine
	case containsAny(text, spiritsKeywords):
		return HintSpirits
	case containsPrefix(text, glassStems), containsAny(text, nonProductKeywords):
		return HintNonAlcoholic
	case containsAny(text, beerKeywords):
		return HintBeer
	case containsAny(text, nonAlcoholicKeywords):
		return HintNonAlcoholic
	case containsAny(text, sparklingKeywords) && !containsAny(text, sparklingExceptions):
		return HintWine
	case containsAny(text, intermediateKeywords):
		return HintIntermediate
	case containsAny(text, wineKeywords):
		return HintWine
	}
	return HintUnknown
}

// IsGlassware reports whether the product name describes glassware rather
// than a beverage.
func IsGlassware(name string) bool {
	text := foldText(name)
	if text == "" {
		return false
	}
	return (containsPrefix(text, glassStems) || containsAny(text, glasswareOnlyKeywords)) && !containsAny(text, spiritsKeywords)
}

var accentFolder = strings.NewReplacer("ł", "l", "ø", "o", "ß", "ss", "õ", "o")

// foldText lowercases, strips diacritics and collapses punctuation into single
// spaces so keywords can be matched on word boundaries.
func foldText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = accentFolder.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsAny(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(folded, foldText(kw)) {
			return true
		}
	}
	return false
}

func containsPrefix(folded string, stems []string) bool {
	for _, stem := range stems {
		if strings.Contains(folded, strings.TrimRight(foldText(stem), " ")) {
			return true
		}
	}
	return false
}
