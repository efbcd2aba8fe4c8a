package rxnorm

import (
	"strings"

	"github.com/rxlens/backend/internal/domain"
)

// Wire types for the RxNav REST responses we consume. Only the fields the
// matcher needs are decoded.

type ndcStatusResponse struct {
	NdcStatus struct {
		Status      string `json:"status"`
		Rxcui       string `json:"rxcui"`
		ConceptName string `json:"conceptName"`
	} `json:"ndcStatus"`
}

// candidates maps an ndcstatus payload to the candidate model. The queried
// NDC is attached as the candidate's own code: a direct hit from this
// endpoint is an exact-code association.
func (r ndcStatusResponse) candidates(ndc domain.NormalizedNdc) []domain.RxNormCandidate {
	st := r.NdcStatus
	if st.Rxcui == "" || !strings.EqualFold(st.Status, "active") {
		return nil
	}
	return []domain.RxNormCandidate{{
		Rxcui: st.Rxcui,
		Name:  st.ConceptName,
		Ndc:   ndc.String(),
	}}
}

type drugSearchResponse struct {
	DrugGroup struct {
		ConceptGroup []struct {
			TTY               string `json:"tty"`
			ConceptProperties []struct {
				Rxcui    string `json:"rxcui"`
				Name     string `json:"name"`
				Synonym  string `json:"synonym"`
				TTY      string `json:"tty"`
				Suppress string `json:"suppress"`
			} `json:"conceptProperties"`
		} `json:"conceptGroup"`
	} `json:"drugGroup"`
}

// candidates flattens a drug search payload, skipping suppressed concepts.
func (r drugSearchResponse) candidates() []domain.RxNormCandidate {
	var out []domain.RxNormCandidate
	for _, group := range r.DrugGroup.ConceptGroup {
		for _, cp := range group.ConceptProperties {
			if cp.Rxcui == "" || strings.EqualFold(cp.Suppress, "y") {
				continue
			}
			tty := cp.TTY
			if tty == "" {
				tty = group.TTY
			}
			cand := domain.RxNormCandidate{
				Rxcui:    cp.Rxcui,
				Name:     cp.Name,
				TermType: tty,
			}
			if cp.Synonym != "" {
				cand.Synonyms = []string{cp.Synonym}
			}
			out = append(out, cand)
		}
	}
	return out
}
