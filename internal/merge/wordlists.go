package merge

// Danish filter word lists. Noise/backchannel/technical-meta filtering is
// language-specific by design (spec.md's stated Non-goal for other
// languages); these are ported verbatim from the retained reference corpus.

var backchannels = map[string]bool{
	"ja":                   true,
	"jo":                   true,
	"nej":                  true,
	"ok":                   true,
	"okay":                 true,
	"nå":                   true,
	"nåh":                  true,
	"mhm":                  true,
	"mm":                   true,
	"mmm":                  true,
	"klart":                true,
	"fedt":                 true,
	"præcis":               true,
	"super":                true,
	"tak":                  true,
	"det gør jeg":          true,
	"det vil jeg gøre":     true,
	"ja okay":              true,
	"ja ja":                true,
	"nej nej":              true,
}

var fillerTokens = map[string]bool{
	"øh":  true,
	"øhm": true,
	"øhh": true,
	"eh":  true,
	"hmm": true,
}

var technicalMetaKeywords = []string{
	"kan du høre",
	"hører mig",
	"høre mig",
	"lyden",
	"mikrofon",
	"kamera",
	"dele skærm",
	"del skærm",
	"skærm",
	"link",
	"chat",
	"chatten",
	"nettet",
	"internet",
	"forbindelse",
	"hakker",
	"langsom",
	"opkald",
	"teams",
	"zoom",
	"kan ikke åbne",
	"kan ikke se",
	"driller",
}

var technicalMetaStrongKeywords = []string{
	"kan du prøve at gentage",
	"kan du gentage",
	"kan du se min skærm",
	"kan du se den nu",
	"er det mig igen",
	"løber tør for strøm",
	"deler skærm",
}

const (
	shortBackchannelMaxWords    = 2
	technicalMetaMaxWords       = 10
	technicalMetaStrongMaxWords = 20
	interruptionMaxWords        = 3
	interruptionMaxGapSec       = 8.0
	speakerRunMergeMaxGapSec    = 10.0
	dedupOverlapToleranceSec    = 0.25
)
