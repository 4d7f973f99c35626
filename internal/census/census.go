// Package census reads the versioned ACL repository (contributors.xml,
// groups.xml, projects.xml) into an immutable CensusInstance the core
// re-materializes on demand per PR check (spec.md §3, §6).
//
// No XML library appears anywhere in the retrieved example corpus; this
// is the one component built directly on the standard library, since
// encoding/xml is a complete, idiomatic decoder for a fixed, small,
// non-streaming schema like this one — see DESIGN.md.
package census

import (
	"encoding/xml"
	"fmt"
)

// Role is a contributor's standing on a project at a census revision.
type Role string

const (
	RoleAuthor     Role = "author"
	RoleContributor Role = "contributor"
	RoleCommitter  Role = "committer"
	RoleReviewer   Role = "reviewer"
	RoleLead       Role = "lead"
)

// Contributor is one census contributor entry.
type Contributor struct {
	ID       string
	FullName string
	Usernames map[string]string // forge name -> login, e.g. "github" -> "octocat"
}

// Project holds per-role member lists for one project.
type Project struct {
	Name       string
	Leads      []string // contributor IDs
	Committers []string
	Reviewers  []string
	Authors    []string
}

// CensusInstance is an immutable snapshot of the census at one repository
// revision.
type CensusInstance struct {
	Revision     string
	Contributors map[string]Contributor // by contributor ID
	byUsername   map[string]string      // "github:octocat" -> contributor ID
	Projects     map[string]Project
}

// ContributorByForgeLogin resolves a forge (e.g. GitHub) login to a
// contributor ID, or ("", false) if the census has no record of it.
func (c *CensusInstance) ContributorByForgeLogin(forge, login string) (string, bool) {
	id, ok := c.byUsername[forge+":"+login]
	return id, ok
}

// RoleOf returns the highest role contributorID holds on project, or ""
// if the contributor has no standing on it.
func (c *CensusInstance) RoleOf(project, contributorID string) Role {
	p, ok := c.Projects[project]
	if !ok {
		return ""
	}
	switch {
	case contains(p.Leads, contributorID):
		return RoleLead
	case contains(p.Committers, contributorID):
		return RoleCommitter
	case contains(p.Reviewers, contributorID):
		return RoleReviewer
	case contains(p.Authors, contributorID):
		return RoleAuthor
	default:
		return ""
	}
}

// IsCommitter reports whether contributorID can push directly to project
// (committer or lead).
func (c *CensusInstance) IsCommitter(project, contributorID string) bool {
	r := c.RoleOf(project, contributorID)
	return r == RoleCommitter || r == RoleLead
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// --- XML wire schema ---

type contributorsXML struct {
	XMLName xml.Name `xml:"contributors"`
	Person  []struct {
		ID        string `xml:"id,attr"`
		FullName  string `xml:"full-name"`
		Usernames []struct {
			Forge string `xml:"forge,attr"`
			Login string `xml:",chardata"`
		} `xml:"username"`
	} `xml:"contributor"`
}

type groupsXML struct {
	XMLName xml.Name `xml:"groups"`
	Group   []struct {
		Name    string   `xml:"name,attr"`
		Members []string `xml:"member"`
	} `xml:"group"`
}

type projectsXML struct {
	XMLName xml.Name `xml:"projects"`
	Project []struct {
		Name       string   `xml:"name,attr"`
		Leads      []string `xml:"lead"`
		Committers []string `xml:"committer"`
		Reviewers  []string `xml:"reviewer"`
		Authors    []string `xml:"author"`
	} `xml:"project"`
}

// Parse decodes the three census documents into a CensusInstance at the
// given revision. groupsDoc is currently informational (group membership
// feeds project role lists indirectly via census repository conventions
// this core does not need to expand); it is accepted for forward
// compatibility with census repositories that reference groups from
// project role lists, but unreferenced groups have no effect here.
func Parse(revision string, contributorsDoc, groupsDoc, projectsDoc []byte) (*CensusInstance, error) {
	var cx contributorsXML
	if err := xml.Unmarshal(contributorsDoc, &cx); err != nil {
		return nil, fmt.Errorf("census: parse contributors.xml: %w", err)
	}

	var px projectsXML
	if err := xml.Unmarshal(projectsDoc, &px); err != nil {
		return nil, fmt.Errorf("census: parse projects.xml: %w", err)
	}

	if len(groupsDoc) > 0 {
		var gx groupsXML
		if err := xml.Unmarshal(groupsDoc, &gx); err != nil {
			return nil, fmt.Errorf("census: parse groups.xml: %w", err)
		}
	}

	inst := &CensusInstance{
		Revision:     revision,
		Contributors: make(map[string]Contributor, len(cx.Person)),
		byUsername:   make(map[string]string),
		Projects:     make(map[string]Project, len(px.Project)),
	}

	for _, p := range cx.Person {
		c := Contributor{ID: p.ID, FullName: p.FullName, Usernames: make(map[string]string)}
		for _, u := range p.Usernames {
			c.Usernames[u.Forge] = u.Login
			inst.byUsername[u.Forge+":"+u.Login] = p.ID
		}
		inst.Contributors[p.ID] = c
	}

	for _, pr := range px.Project {
		inst.Projects[pr.Name] = Project{
			Name:       pr.Name,
			Leads:      pr.Leads,
			Committers: pr.Committers,
			Reviewers:  pr.Reviewers,
			Authors:    pr.Authors,
		}
	}

	return inst, nil
}
