package stakes

// #region level

// Level is the stakes band of a transcript.
type Level string

const (
	Low    Level = "LOW"
	Medium Level = "MEDIUM"
	High   Level = "HIGH"
)

// #endregion level

// #region evidence

// Evidence is the classifier output. Evidence entries are formatted
// "<level>:<domain>:<term>".
type Evidence struct {
	Level      Level    `json:"level"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// #endregion evidence

// #region domains

type domain struct {
	name  string
	level Level
	terms []string
}

var highDomains = []domain{
	{"medical", High, []string{
		"patient", "clinical", "dose", "dosage", "diagnosis", "prescription",
		"medication", "surgery", "symptom", "symptoms", "treatment", "hospital",
	}},
	{"legal", High, []string{
		"lawsuit", "legal", "contract", "liability", "court", "attorney",
		"litigation", "statute", "custody",
	}},
	{"financial", High, []string{
		"investment", "loan", "mortgage", "tax", "portfolio", "financial",
		"bank", "trading", "retirement", "bankruptcy",
	}},
	{"credentials", High, []string{
		"password", "credential", "credentials", "ssn", "social security",
		"api key", "private key", "authentication", "secret key",
	}},
}

var lowDomains = []domain{
	{"math", Low, []string{
		"equation", "algebra", "calculate", "integral", "theorem",
		"derivative", "arithmetic", "geometry",
	}},
	{"ui", Low, []string{
		"button", "layout", "color", "font", "css", "click", "dropdown",
		"modal", "padding",
	}},
	{"coding", Low, []string{
		"algorithm", "function", "variable", "compile", "syntax", "array",
		"refactor", "debug",
	}},
}

// #endregion domains
