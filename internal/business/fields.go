package business

import "github.com/deepbiz/directory/internal/model"

// UpdateMode controls what happens when a source re-discovers an entity it
// already identifies.
type UpdateMode string

const (
	// ModeSkip leaves descriptive fields untouched.
	ModeSkip UpdateMode = "skip"
	// ModeOverwrite replaces descriptive fields with the observed values.
	ModeOverwrite UpdateMode = "overwrite"
)

// Valid reports whether m is a known mode.
func (m UpdateMode) Valid() bool {
	return m == ModeSkip || m == ModeOverwrite
}

// entityFromObservation builds a new single-source entity.
func entityFromObservation(o *model.Observation) *model.Entity {
	e := &model.Entity{
		Address:    o.Address,
		WebsiteURL: o.WebsiteURL,
		Phone:      o.Phone,
	}
	setIdentity(e, o)
	setSourceName(e, o)
	return e
}

// setIdentity copies the observation's source identifiers onto e.
func setIdentity(e *model.Entity, o *model.Observation) {
	switch o.Source {
	case model.SourcePlaces:
		e.PlaceID = o.PlaceID
		if e.CID == "" {
			e.CID = o.CID
		}
	case model.SourceListing:
		e.ListingURL = o.ListingURL
	}
}

// setSourceName writes the observed name into the field owned by its source.
func setSourceName(e *model.Entity, o *model.Observation) {
	if o.Name == "" {
		return
	}
	switch o.Source {
	case model.SourcePlaces:
		e.Name = o.Name
	case model.SourceListing:
		e.ListingName = o.Name
	}
}

// fillFromObservation fills fields e lacks. Fields already present are kept.
func fillFromObservation(e *model.Entity, o *model.Observation) {
	switch o.Source {
	case model.SourcePlaces:
		if e.Name == "" {
			e.Name = o.Name
		}
	case model.SourceListing:
		if e.ListingName == "" {
			e.ListingName = o.Name
		}
	}
	if e.Address == "" {
		e.Address = o.Address
	}
	if e.WebsiteURL == "" {
		e.WebsiteURL = o.WebsiteURL
	}
	if e.Phone == "" {
		e.Phone = o.Phone
	}
}

// overwriteFromObservation replaces descriptive fields with the non-empty
// observed values and reports whether anything changed.
func overwriteFromObservation(e *model.Entity, o *model.Observation) bool {
	before := *e
	setSourceName(e, o)
	if o.Address != "" {
		e.Address = o.Address
	}
	if o.WebsiteURL != "" {
		e.WebsiteURL = o.WebsiteURL
	}
	if o.Phone != "" {
		e.Phone = o.Phone
	}
	if o.Source == model.SourcePlaces && o.CID != "" && e.CID == "" {
		e.CID = o.CID
	}
	return before != *e
}

// fillFromEntity fills fields canonical lacks from a redundant record.
func fillFromEntity(canonical, redundant *model.Entity) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&canonical.Name, redundant.Name)
	fill(&canonical.ListingName, redundant.ListingName)
	fill(&canonical.Address, redundant.Address)
	fill(&canonical.WebsiteURL, redundant.WebsiteURL)
	fill(&canonical.InquiryURL, redundant.InquiryURL)
	fill(&canonical.Email, redundant.Email)
	fill(&canonical.Phone, redundant.Phone)
}
