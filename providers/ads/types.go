package ads

// SearchResponse ist die Top-Level-Struktur der ADS-API-Antwort.
type SearchResponse struct {
	ResponseHeader struct {
		Status int `json:"status"`
	} `json:"responseHeader"`
	Response struct {
		NumFound int   `json:"numFound"`
		Docs     []Doc `json:"docs"`
	} `json:"response"`
}

// Doc repräsentiert einen einzelnen Datensatz in der API-Antwort.
type Doc struct {
	Bibcode       string   `json:"bibcode"`
	Title         []string `json:"title"`
	Author        []string `json:"author"`
	Year          string   `json:"year"`
	Pub           string   `json:"pub"`
	DOI           []string `json:"doi"`
	Reference     []string `json:"reference"`
	Citation      []string `json:"citation"`
	CitationCount int      `json:"citation_count"`
}

// ErrorResponse is the body ADS sends with non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}

const fieldList = "bibcode,title,author,year,pub,doi,reference,citation,citation_count"
