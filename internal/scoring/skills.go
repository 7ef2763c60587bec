package scoring

import (
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/samber/lo"
	"strings"
)

var skillSynonyms = map[string]string{
	"go":                          "golang",
	"js":                          "javascript",
	"ecmascript":                  "javascript",
	"ts":                          "typescript",
	"py":                          "python",
	"python3":                     "python",
	"k8s":                         "kubernetes",
	"postgres":                    "postgresql",
	"psql":                        "postgresql",
	"amazon web services":         "aws",
	"gcp":                         "google cloud",
	"google cloud platform":       "google cloud",
	"ml":                          "machine learning",
	"dl":                          "deep learning",
	"nodejs":                      "node.js",
	"node":                        "node.js",
	"reactjs":                     "react",
	"react.js":                    "react",
	"vuejs":                       "vue",
	"vue.js":                      "vue",
	"c sharp":                     "c#",
	"csharp":                      "c#",
	"cpp":                         "c++",
	"mongo":                       "mongodb",
	"sklearn":                     "scikit-learn",
	"ci/cd":                       "cicd",
	"continuous integration":      "cicd",
	"natural language processing": "nlp",
}

const (
	exactSkill     = 1.0
	substringSkill = 0.8
	mentionedSkill = 0.5
	minSubstring   = 3
)

func canonicalSkill(skill string) string {
	skill = strings.Join(strings.Fields(strings.ToLower(skill)), " ")
	if synonym, ok := skillSynonyms[skill]; ok {
		return synonym
	}
	return skill
}

// skillsScore averages per-skill credit. Explicit job tags are used first:
// exact or synonym hit 1.0, substring 0.8, and a skill only mentioned in the
// job text still earns 0.5. Without tags the skills are mined from the text.
func skillsScore(job *models.Job, userSkills []string, details *Details) float64 {
	wanted := lo.Uniq(lo.FilterMap(userSkills, func(s string, _ int) (string, bool) {
		s = canonicalSkill(s)
		return s, s != ""
	}))
	if len(wanted) == 0 {
		return neutral
	}

	tags := lo.Uniq(lo.FilterMap(job.Skills, func(s string, _ int) (string, bool) {
		s = canonicalSkill(s)
		return s, s != ""
	}))
	textTokens := canonicalTokens(job.Title + " " + job.Description)
	details.SkillsFromText = len(tags) == 0

	total := 0.0
	for _, skill := range wanted {
		credit := 0.0
		if len(tags) > 0 {
			credit = tagCredit(skill, tags)
			if credit == 0 && mentioned(skill, textTokens) {
				credit = mentionedSkill
			}
		} else if mentioned(skill, textTokens) {
			credit = exactSkill
		}

		if credit > 0 {
			details.MatchedSkills = append(details.MatchedSkills, skill)
		} else {
			details.MissingSkills = append(details.MissingSkills, skill)
		}
		total += credit
	}
	return total / float64(len(wanted))
}

func tagCredit(skill string, tags []string) float64 {
	best := 0.0
	for _, tag := range tags {
		switch {
		case tag == skill:
			return exactSkill
		case len(skill) >= minSubstring && len(tag) >= minSubstring &&
			(strings.Contains(tag, skill) || strings.Contains(skill, tag)):
			best = substringSkill
		}
	}
	return best
}

// canonicalTokens is the job text as single tokens plus canonical bigrams,
// so multi-word skills and their synonyms can be found.
func canonicalTokens(text string) map[string]struct{} {
	tokens := tokenize(text)
	result := make(map[string]struct{}, len(tokens)*2)
	for i, token := range tokens {
		result[token] = struct{}{}
		result[canonicalSkill(token)] = struct{}{}
		if i+1 < len(tokens) {
			bigram := token + " " + tokens[i+1]
			result[bigram] = struct{}{}
			result[canonicalSkill(bigram)] = struct{}{}
		}
		if i+2 < len(tokens) {
			result[canonicalSkill(token+" "+tokens[i+1]+" "+tokens[i+2])] = struct{}{}
		}
	}
	return result
}

func mentioned(skill string, tokens map[string]struct{}) bool {
	_, ok := tokens[skill]
	return ok
}
