package entities

import (
	"context"
	"fmt"

	"healthwire/internal/canon"
	"healthwire/internal/core"
	"healthwire/internal/persistence"
)

// SaveResult counts the junction rows written for one article.
type SaveResult struct {
	Organizations int
	People        int
	Technologies  int
}

// Total returns the number of entities linked to the article.
func (r SaveResult) Total() int {
	return r.Organizations + r.People + r.Technologies
}

// Save upserts each normalized entity by canonical name and links it to the
// article. Links are insert-or-ignore, so saving the same extraction twice
// leaves one junction row per pair. The first store error stops the save.
func Save(ctx context.Context, repo persistence.EntityRepository, articleID string, ex Extraction) (SaveResult, error) {
	var res SaveResult
	orgIDs := make(map[string]string)

	resolveOrg := func(name string, typ core.OrganizationType) (string, error) {
		key := canon.Key(name)
		if id, ok := orgIDs[key]; ok {
			return id, nil
		}
		org := &core.Organization{CanonicalName: name, Type: typ}
		if err := repo.UpsertOrganization(ctx, org); err != nil {
			return "", fmt.Errorf("upsert organization %q: %w", name, err)
		}
		orgIDs[key] = org.ID
		return org.ID, nil
	}

	for _, m := range ex.Organizations {
		id, err := resolveOrg(m.Name, core.ParseOrganizationType(m.Type))
		if err != nil {
			return res, err
		}
		link := core.EntityLink{ArticleID: articleID, EntityID: id, Confidence: m.Confidence}
		if err := repo.LinkOrganization(ctx, link); err != nil {
			return res, fmt.Errorf("link organization %q: %w", m.Name, err)
		}
		res.Organizations++
	}

	for _, m := range ex.Technologies {
		tech := &core.Technology{CanonicalName: m.Name, Category: m.Category}
		if m.Vendor != "" {
			vendorID, err := resolveOrg(m.Vendor, core.OrgVendor)
			if err != nil {
				return res, err
			}
			tech.VendorID = &vendorID
		}
		if err := repo.UpsertTechnology(ctx, tech); err != nil {
			return res, fmt.Errorf("upsert technology %q: %w", m.Name, err)
		}
		link := core.EntityLink{ArticleID: articleID, EntityID: tech.ID, Confidence: m.Confidence}
		if err := repo.LinkTechnology(ctx, link); err != nil {
			return res, fmt.Errorf("link technology %q: %w", m.Name, err)
		}
		res.Technologies++
	}

	for _, m := range ex.People {
		person := &core.Person{Name: m.Name, Title: m.Title}
		if m.Organization != "" {
			orgID, err := resolveOrg(m.Organization, core.OrgOther)
			if err != nil {
				return res, err
			}
			person.OrganizationID = &orgID
		}
		if err := repo.FindOrCreatePerson(ctx, person); err != nil {
			return res, fmt.Errorf("find or create person %q: %w", m.Name, err)
		}
		link := core.EntityLink{ArticleID: articleID, EntityID: person.ID, Confidence: m.Confidence}
		if err := repo.LinkPerson(ctx, link); err != nil {
			return res, fmt.Errorf("link person %q: %w", m.Name, err)
		}
		res.People++
	}

	return res, nil
}
