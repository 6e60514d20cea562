package models

// Subject 被监护人（对应 subjects 表）
// 由外部身份系统维护，本引擎只读
type Subject struct {
	SubjectID   string `json:"subject_id" db:"subject_id"`
	HouseholdID string `json:"household_id" db:"household_id"` // 家庭组，用于解析紧急联系人
	FullName    string `json:"full_name" db:"full_name"`
}

// EmergencyContact 紧急联系人（对应 emergency_contacts 表）
// 属于一个家庭组，本引擎只读，用于 Dispatcher 路由
type EmergencyContact struct {
	ContactID   string `json:"contact_id" db:"contact_id"`
	HouseholdID string `json:"household_id" db:"household_id"`

	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	ReceiveEmail bool   `json:"receive_email" db:"receive_email"`
}
