package domain

// Mode selects which business area the dashboard shows.
type Mode string

const (
	ModeEducation   Mode = "education"
	ModeRecruitment Mode = "recruitment"
	ModeAISupport   Mode = "ai_support"
	ModeSales       Mode = "sales"
	ModeProjects    Mode = "projects"
)

// DefaultMode is used for users that never picked one.
const DefaultMode = ModeEducation

// Modes lists every mode in display order.
var Modes = []Mode{ModeEducation, ModeRecruitment, ModeAISupport, ModeSales, ModeProjects}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", ErrInvalidMode
}

// Label is the Japanese display name of the mode.
func (m Mode) Label() string {
	switch m {
	case ModeEducation:
		return "教育支援"
	case ModeRecruitment:
		return "採用支援"
	case ModeAISupport:
		return "AI導入支援"
	case ModeSales:
		return "営業開拓"
	default:
		return "派生プロジェクト"
	}
}

// LinkedEntityType is the kanban link type of checklist categories in this mode.
func (m Mode) LinkedEntityType() LinkedEntityType {
	switch m {
	case ModeEducation:
		return EntitySchool
	case ModeRecruitment:
		return EntityCompany
	case ModeAISupport:
		return EntityAIClient
	case ModeSales:
		return EntitySales
	default:
		return EntityProject
	}
}

// DefaultIcon is the icon id given to new categories.
func (m Mode) DefaultIcon() string {
	switch m {
	case ModeEducation:
		return "graduation"
	case ModeRecruitment:
		return "building"
	case ModeAISupport:
		return "cpu"
	case ModeSales:
		return "handshake"
	default:
		return "folder"
	}
}
