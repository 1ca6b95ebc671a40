package complaint

import "strings"

// Department labels returned by Classify.
const (
	DeptPower        = "Electricity Department"
	DeptMunicipal    = "Municipal Corporation (MCD)"
	DeptRoads        = "Public Works Department (PWD)"
	DeptWater        = "Delhi Jal Board"
	DeptStreetLight  = "Street Lighting Department"
	DeptGeneralAdmin = "General Admin"
)

type rule struct {
	dept     string
	keywords []string
}

// rules are evaluated top to bottom and the first hit wins. The order is
// routing policy: a pothole next to a fallen power line belongs to Power.
var rules = []rule{
	{DeptPower, []string{"electric", "power", "transformer", "voltage", "outage", "wire", "blackout", "meter", "bijli"}},
	{DeptMunicipal, []string{"garbage", "trash", "waste", "sewer", "sewage", "drain", "dump", "stray", "dog", "cattle", "cow", "animal", "litter", "sanitation", "kachra"}},
	{DeptRoads, []string{"pothole", "road", "footpath", "pavement", "asphalt", "speed breaker", "bridge", "sadak"}},
	{DeptWater, []string{"water", "leak", "pipeline", "tap", "paani"}},
	{DeptStreetLight, []string{"streetlight", "street light", "lamp", "light", "bulb"}},
}

// Classify routes free text to a responsible department.
//
// The three inputs are joined and lower-cased, then matched by substring
// against each keyword set in priority order. No match yields DeptGeneralAdmin.
func Classify(typ, subject, description string) string {
	text := strings.ToLower(typ + " " + subject + " " + description)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.dept
			}
		}
	}
	return DeptGeneralAdmin
}

// IsPlaceholderDept reports whether dept should be replaced by Classify.
func IsPlaceholderDept(dept string) bool {
	d := strings.TrimSpace(dept)
	return d == "" || strings.EqualFold(d, AutoAssigned)
}
