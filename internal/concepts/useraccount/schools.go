package useraccount

// School is a supported campus. Users are affiliated through their email
// domain.
type School struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	FullName string `json:"fullName"`
}

// Schools lists the supported campuses in display order.
var Schools = []School{
	{Name: "MIT", Domain: "mit.edu", FullName: "Massachusetts Institute of Technology"},
	{Name: "Wellesley", Domain: "wellesley.edu", FullName: "Wellesley College"},
	{Name: "Harvard", Domain: "harvard.edu", FullName: "Harvard University"},
	{Name: "Boston University", Domain: "bu.edu", FullName: "Boston University"},
	{Name: "Northeastern", Domain: "northeastern.edu", FullName: "Northeastern University"},
}

// SchoolByName returns the school with the given name.
func SchoolByName(name string) (School, bool) {
	for _, s := range Schools {
		if s.Name == name {
			return s, true
		}
	}
	return School{}, false
}

// SchoolForEmail returns the school whose domain matches the email's
// domain exactly.
func SchoolForEmail(email string) (School, bool) {
	domain := emailDomain(email)
	for _, s := range Schools {
		if s.Domain == domain {
			return s, true
		}
	}
	return School{}, false
}
