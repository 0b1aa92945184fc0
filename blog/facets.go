// blog/facets.go
package blog

import (
	"net/url"
	"strconv"
)

// Choice is one selectable (value, label) pair in a facet.
type Choice struct {
	Value string
	Label string
}

// FacetKind tags the filter strategy of a field. The kind decides what a
// selected value does to the query; no reflection over form fields.
type FacetKind int

const (
	// FacetExact narrows to posts whose relation matches the value.
	FacetExact FacetKind = iota
	// FacetRounded narrows to posts whose average rating rounds (half-up)
	// to the selected integer.
	FacetRounded
	// FacetSort reorders the listing and never narrows it.
	FacetSort
)

// FilterField is one declared field of the filter form: a name, a strategy,
// and the closed set of values it accepts.
type FilterField struct {
	Name    string
	Kind    FacetKind
	Choices []Choice
}

// FilterForm is the declarative description the facet pipeline works from.
// Fields apply in declaration order.
type FilterForm struct {
	Fields []FilterField
}

// NewFilterForm declares the home-page filter form. Author and group
// choices must come from AuthorsWithPosts/GroupsWithPosts so the form never
// offers an option that matches nothing.
func NewFilterForm(authors []Author, groups []Group) FilterForm {
	authorChoices := make([]Choice, 0, len(authors))
	for i := range authors {
		authorChoices = append(authorChoices, Choice{
			Value: authors[i].ID,
			Label: authors[i].Name(),
		})
	}
	groupChoices := make([]Choice, 0, len(groups))
	for _, g := range groups {
		groupChoices = append(groupChoices, Choice{
			Value: strconv.FormatInt(g.ID, 10),
			Label: g.Title,
		})
	}
	return FilterForm{Fields: []FilterField{
		{Name: "author", Kind: FacetExact, Choices: authorChoices},
		{Name: "group", Kind: FacetExact, Choices: groupChoices},
		{Name: "rating", Kind: FacetRounded, Choices: RatingChoices},
		{Name: "sorting", Kind: FacetSort, Choices: SortChoices},
	}}
}

// Parse validates raw query values against the declared fields. A value
// outside a field's choice set is dropped, never an error; unknown
// parameters are ignored.
func (f FilterForm) Parse(values url.Values) map[string]string {
	selected := make(map[string]string)
	for _, field := range f.Fields {
		v := values.Get(field.Name)
		if v == "" {
			continue
		}
		for _, c := range field.Choices {
			if c.Value == v {
				selected[field.Name] = v
				break
			}
		}
	}
	return selected
}

// FacetCategory is one renderable filter dimension.
type FacetCategory struct {
	Name    string
	Choices []Choice
}

// Facets is what listing templates render: the available choices per
// category, and which choice (with its label) is currently active.
type Facets struct {
	Categories []FacetCategory
	Selected   map[string]Choice
}

// SelectedValue returns the active value for a category, or "".
func (f *Facets) SelectedValue(name string) string {
	return f.Selected[name].Value
}

// BuildFacets derives the facets structure from the form. Nothing is
// selected yet except sorting, which starts on the first sort option.
func BuildFacets(form FilterForm) *Facets {
	facets := &Facets{Selected: make(map[string]Choice)}
	for _, field := range form.Fields {
		facets.Categories = append(facets.Categories, FacetCategory{
			Name:    field.Name,
			Choices: field.Choices,
		})
		if field.Kind == FacetSort && len(field.Choices) > 0 {
			facets.Selected[field.Name] = field.Choices[0]
		}
	}
	return facets
}

// ApplyFacets walks the form's fields in order and, for each value the user
// selected, narrows or reorders the query and records the active choice in
// facets.Selected. The input query is taken by value: the caller's base
// query is never touched, so statistics computed before filtering stay
// tied to the unfiltered universe.
func ApplyFacets(facets *Facets, q PostQuery, form FilterForm, selected map[string]string) PostQuery {
	for _, field := range form.Fields {
		value, ok := selected[field.Name]
		if !ok || value == "" {
			continue
		}
		label := value
		for _, c := range field.Choices {
			if c.Value == value {
				label = c.Label
				break
			}
		}
		facets.Selected[field.Name] = Choice{Value: value, Label: label}

		switch field.Kind {
		case FacetSort:
			q.Sort = SortKey(value)
		case FacetRounded:
			if n, err := strconv.Atoi(value); err == nil {
				q.Rating = n
			}
		case FacetExact:
			switch field.Name {
			case "author":
				q.AuthorID = value
			case "group":
				if id, err := strconv.ParseInt(value, 10, 64); err == nil {
					q.GroupID = &id
				}
			}
		}
	}
	return q
}
