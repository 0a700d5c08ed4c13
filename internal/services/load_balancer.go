package services

import (
	"math"
	"sort"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// UserPlan is one user's fair share of a planning round.
type UserPlan struct {
	User        *types.User
	ShareLoad   float64
	PagesNumber int
}

// LoadBalancer computes each user's page allotment from their free
// capacity. The sum of allotments is exactly totalPages * coverage except
// when coverage exceeds the user count, which caps what is arithmetically
// possible (no user may hold the same page twice).
type LoadBalancer interface {
	Plan(totalPages int, users []*types.User, coverage int) []UserPlan
}

type loadBalancer struct {
	log *logger.Logger
}

func NewLoadBalancer(baseLog *logger.Logger) LoadBalancer {
	return &loadBalancer{log: baseLog.With("service", "LoadBalancer")}
}

func (lb *loadBalancer) Plan(totalPages int, users []*types.User, coverage int) []UserPlan {
	if coverage < 1 {
		coverage = 1
	}
	plans := make([]UserPlan, len(users))
	for i, u := range users {
		plans[i] = UserPlan{User: u}
	}
	if len(users) == 0 || totalPages <= 0 {
		return plans
	}

	weights := make([]float64, len(users))
	var weightSum float64
	for i, u := range users {
		w := float64(u.DefaultLoad - u.OverallLoad)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		weightSum += w
	}
	if weightSum == 0 {
		// Everyone is fully loaded: fall back to an even split so no
		// user is starved of assignment.
		for i := range weights {
			weights[i] = 1
		}
		weightSum = float64(len(weights))
	}

	target := totalPages * coverage
	if max := len(users) * totalPages; target > max {
		lb.log.Warn("coverage exceeds available users, planning best effort",
			"coverage", coverage, "users", len(users), "total_pages", totalPages)
		target = max
	}

	assigned := 0
	for i := range plans {
		plans[i].ShareLoad = weights[i] / weightSum
		n := int(math.Round(plans[i].ShareLoad * float64(target)))
		if n > totalPages {
			n = totalPages
		}
		plans[i].PagesNumber = n
		assigned += n
	}

	// Correct rounding drift, starting from the highest-share user.
	order := make([]int, len(plans))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return plans[order[a]].ShareLoad > plans[order[b]].ShareLoad
	})
	for i := 0; assigned != target && len(order) > 0; i = (i + 1) % len(order) {
		idx := order[i]
		if assigned < target {
			if plans[idx].PagesNumber < totalPages {
				plans[idx].PagesNumber++
				assigned++
			}
		} else {
			if plans[idx].PagesNumber > 0 {
				plans[idx].PagesNumber--
				assigned--
			}
		}
	}
	return plans
}
