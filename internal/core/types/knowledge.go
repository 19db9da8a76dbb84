package types

const Unavailable = "Information not available"

type KnowledgeRecord struct {
	ScientificName  string   `json:"Scientific Name"`
	MedicinalUses   []string `json:"Medicinal Uses"`
	ActiveCompounds []string `json:"Active Compounds"`
	Precautions     string   `json:"Precautions"`
	Sources         []string `json:"Sources"`
	Available       bool     `json:"available"`
}

func PlaceholderRecord() KnowledgeRecord {
	return KnowledgeRecord{
		ScientificName:  Unavailable,
		MedicinalUses:   []string{},
		ActiveCompounds: []string{},
		Precautions:     Unavailable,
		Sources:         []string{},
		Available:       false,
	}
}
