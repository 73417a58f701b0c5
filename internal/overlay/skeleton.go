package overlay

// Limb joins two named landmarks with a line.
type Limb struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Skeleton is the fixed set of limbs drawn for every pose: each arm and leg
// chain per side, plus the shoulder and hip girdles.
var Skeleton = []Limb{
	{"left_wrist", "left_elbow"},
	{"left_elbow", "left_shoulder"},
	{"left_shoulder", "left_hip"},
	{"left_hip", "left_knee"},
	{"left_knee", "left_ankle"},

	{"right_wrist", "right_elbow"},
	{"right_elbow", "right_shoulder"},
	{"right_shoulder", "right_hip"},
	{"right_hip", "right_knee"},
	{"right_knee", "right_ankle"},

	{"left_shoulder", "right_shoulder"},
	{"left_hip", "right_hip"},
}
