// ABOUTME: Outreach template selection and {{token}} rendering
// ABOUTME: Category match beats persona match beats a generic template; missing data renders empty
package queue

import (
	"regexp"
	"strings"

	"github.com/harperreed/cadence/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z]+)\s*\}\}`)

// Render substitutes {{token}} placeholders from the contact. Unknown tokens and tokens
// without data become empty strings.
func Render(body string, c *models.Contact, category *models.Category) string {
	values := tokenValues(c, category)
	return tokenPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		return values[name]
	})
}

func tokenValues(c *models.Contact, category *models.Category) map[string]string {
	first, last := c.FirstName, c.LastName
	parts := strings.Fields(c.Name)
	if first == "" && len(parts) > 0 {
		first = parts[0]
	}
	if last == "" && len(parts) > 1 {
		last = parts[len(parts)-1]
	}
	v := map[string]string{
		"firstName":          first,
		"lastName":           last,
		"name":               c.Name,
		"company":            c.Company,
		"title":              c.Title,
		"location":           c.Location,
		"headline":           c.Headline,
		"introductionSource": c.IntroductionSource,
	}
	if category != nil {
		v["category"] = category.Name
	}
	return v
}

// MatchTemplate picks the best template for a contact whose categories are given heaviest
// first. It returns the template and the category it matched through, if any.
func MatchTemplate(templates []models.OutreachTemplate, categories []models.Category) (*models.OutreachTemplate, *models.Category) {
	for i := range categories {
		for j := range templates {
			if templates[j].CategoryID != nil && *templates[j].CategoryID == categories[i].ID {
				return &templates[j], &categories[i]
			}
		}
	}
	for i := range categories {
		if categories[i].Persona == "" {
			continue
		}
		for j := range templates {
			if templates[j].CategoryID == nil && templates[j].Persona == categories[i].Persona {
				return &templates[j], &categories[i]
			}
		}
	}
	var top *models.Category
	if len(categories) > 0 {
		top = &categories[0]
	}
	for j := range templates {
		if templates[j].CategoryID == nil && templates[j].Persona == "" {
			return &templates[j], top
		}
	}
	return nil, top
}
