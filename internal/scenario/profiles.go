package scenario

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Task is one weighted behavior within a profile.
type Task struct {
	// Name describes the behavior (for listings, not metrics)
	Name string

	// Weight is the relative selection frequency
	Weight int

	// Run executes one pass of the behavior
	Run func(ctx context.Context, s *Session) error
}

// Profile groups weighted tasks with the pacing applied between
// iterations.
type Profile struct {
	// Name identifies the profile on the command line
	Name string

	// Description is a one-line summary for listings
	Description string

	// WaitMin and WaitMax bound the random pacing between iterations
	WaitMin time.Duration
	WaitMax time.Duration

	// Tasks are the weighted behaviors; each iteration picks one
	Tasks []Task
}

// TotalWeight returns the sum of all task weights.
func (p *Profile) TotalWeight() int {
	total := 0
	for _, t := range p.Tasks {
		total += t.Weight
	}
	return total
}

var profiles = map[string]*Profile{
	"standard": {
		Name:        "standard",
		Description: "Typical e-commerce mix: registration, browsing, favourites, orders, payments",
		WaitMin:     1 * time.Second,
		WaitMax:     3 * time.Second,
		Tasks: []Task{
			{Name: "user registration", Weight: 10, Run: runUserRegistration},
			{Name: "product browsing", Weight: 40, Run: runProductBrowse},
			{Name: "favourite management", Weight: 20, Run: runFavouriteManagement},
			{Name: "order creation", Weight: 20, Run: runOrderCreation},
			{Name: "payment processing", Weight: 10, Run: runPaymentProcessing},
		},
	},
	"high-load": {
		Name:        "high-load",
		Description: "Rapid product and user listing calls for stress testing",
		WaitMin:     100 * time.Millisecond,
		WaitMax:     500 * time.Millisecond,
		Tasks: []Task{
			{Name: "browse products", Weight: 3, Run: runHighLoadBrowse},
			{Name: "view product", Weight: 2, Run: runHighLoadViewProduct},
			{Name: "view users", Weight: 1, Run: runHighLoadViewUsers},
		},
	},
	"full-flow": {
		Name:        "full-flow",
		Description: "Complete shopping flow: register, browse, then order when registered",
		WaitMin:     2 * time.Second,
		WaitMax:     5 * time.Second,
		Tasks: []Task{
			{Name: "shopping flow", Weight: 1, Run: runShoppingFlow},
		},
	},
	"user-service": {
		Name:        "user-service",
		Description: "Focused load on the user service endpoints",
		WaitMin:     500 * time.Millisecond,
		WaitMax:     2 * time.Second,
		Tasks: []Task{
			{Name: "get all users", Weight: 5, Run: runUserServiceGetAll},
			{Name: "get user by id", Weight: 3, Run: runUserServiceGetByID},
			{Name: "create user", Weight: 2, Run: runUserServiceCreate},
		},
	},
	"order-service": {
		Name:        "order-service",
		Description: "Focused load on the order service endpoints",
		WaitMin:     500 * time.Millisecond,
		WaitMax:     2 * time.Second,
		Tasks: []Task{
			{Name: "get all orders", Weight: 5, Run: runOrderServiceGetAll},
			{Name: "get order by id", Weight: 3, Run: runOrderServiceGetByID},
			{Name: "create order", Weight: 2, Run: runOrderServiceCreate},
		},
	},
}

// GetProfile returns the named profile.
func GetProfile(name string) (*Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile: %s (available: %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the names of all built-in profiles, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllProfiles returns the built-in profiles sorted by name.
func AllProfiles() []*Profile {
	result := make([]*Profile, 0, len(profiles))
	for _, name := range ProfileNames() {
		result = append(result, profiles[name])
	}
	return result
}
