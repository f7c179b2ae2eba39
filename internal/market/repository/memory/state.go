package memory

import (
	"github.com/songzhibin97/qwork/pkg/market"
)

// state is one consistent snapshot of every table. Transactions work on a
// private clone and swap it in on commit.
type state struct {
	seq map[string]int64

	accounts     map[int64]*market.Account
	profiles     map[int64]*market.Profile
	availability map[int64]*market.Availability
	experience   map[int64][]*market.Experience
	education    map[int64][]*market.Education
	pricing      map[int64][]*market.Pricing

	tags      map[market.InterestKind]map[int64]*market.Tag
	interests map[market.InterestKind]map[int64][]int64

	portfolios map[int64]*market.Portfolio
	images     map[int64]*market.PortfolioImage
	keywords   map[int64]*market.PortfolioKeyword

	admins  map[int64]*market.Admin
	fileOps map[int64]*market.FileOp
}

func newState() *state {
	s := &state{
		seq:          make(map[string]int64),
		accounts:     make(map[int64]*market.Account),
		profiles:     make(map[int64]*market.Profile),
		availability: make(map[int64]*market.Availability),
		experience:   make(map[int64][]*market.Experience),
		education:    make(map[int64][]*market.Education),
		pricing:      make(map[int64][]*market.Pricing),
		tags:         make(map[market.InterestKind]map[int64]*market.Tag),
		interests:    make(map[market.InterestKind]map[int64][]int64),
		portfolios:   make(map[int64]*market.Portfolio),
		images:       make(map[int64]*market.PortfolioImage),
		keywords:     make(map[int64]*market.PortfolioKeyword),
		admins:       make(map[int64]*market.Admin),
		fileOps:      make(map[int64]*market.FileOp),
	}
	for _, k := range market.InterestKinds {
		s.tags[k] = make(map[int64]*market.Tag)
		s.interests[k] = make(map[int64][]int64)
	}
	return s
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for id, a := range s.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for id, p := range s.profiles {
		c.profiles[id] = copyProfile(p)
	}
	for id, a := range s.availability {
		cp := *a
		c.availability[id] = &cp
	}
	for id, items := range s.experience {
		for _, it := range items {
			cp := *it
			c.experience[id] = append(c.experience[id], &cp)
		}
	}
	for id, items := range s.education {
		for _, it := range items {
			cp := *it
			c.education[id] = append(c.education[id], &cp)
		}
	}
	for id, items := range s.pricing {
		for _, it := range items {
			cp := *it
			c.pricing[id] = append(c.pricing[id], &cp)
		}
	}
	for kind, tags := range s.tags {
		for id, t := range tags {
			cp := *t
			c.tags[kind][id] = &cp
		}
	}
	for kind, byAccount := range s.interests {
		for id, ids := range byAccount {
			c.interests[kind][id] = append([]int64(nil), ids...)
		}
	}
	for id, p := range s.portfolios {
		c.portfolios[id] = copyPortfolioRow(p)
	}
	for id, img := range s.images {
		cp := *img
		c.images[id] = &cp
	}
	for id, kw := range s.keywords {
		cp := *kw
		c.keywords[id] = &cp
	}
	for id, a := range s.admins {
		cp := *a
		c.admins[id] = &cp
	}
	for id, op := range s.fileOps {
		cp := *op
		c.fileOps[id] = &cp
	}
	return c
}

// deleteAccount removes the account and every row depending on it
func (s *state) deleteAccount(id int64) {
	delete(s.accounts, id)
	delete(s.profiles, id)
	delete(s.availability, id)
	delete(s.experience, id)
	delete(s.education, id)
	delete(s.pricing, id)
	for _, k := range market.InterestKinds {
		delete(s.interests[k], id)
	}
	for pid, p := range s.portfolios {
		if p.AccountID == id {
			s.deletePortfolio(pid)
		}
	}
}

// deletePortfolio removes the portfolio and its images and keywords
func (s *state) deletePortfolio(id int64) {
	delete(s.portfolios, id)
	for iid, img := range s.images {
		if img.PortfolioID == id {
			delete(s.images, iid)
		}
	}
	for kid, kw := range s.keywords {
		if kw.PortfolioID == id {
			delete(s.keywords, kid)
		}
	}
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func copyAccount(a *market.Account) *market.Account {
	cp := *a
	cp.ActivationToken = copyString(a.ActivationToken)
	cp.ResetToken = copyString(a.ResetToken)
	if a.ResetTokenExpiry != nil {
		t := *a.ResetTokenExpiry
		cp.ResetTokenExpiry = &t
	}
	return &cp
}

func copyProfile(p *market.Profile) *market.Profile {
	cp := *p
	cp.ProfileImage = copyString(p.ProfileImage)
	if p.DateOfBirth != nil {
		t := *p.DateOfBirth
		cp.DateOfBirth = &t
	}
	return &cp
}

// copyPortfolioRow copies the portfolio columns without children
func copyPortfolioRow(p *market.Portfolio) *market.Portfolio {
	cp := *p
	cp.Video = copyString(p.Video)
	cp.Document = copyString(p.Document)
	cp.Images = nil
	cp.Keywords = nil
	return &cp
}
