package tokens

import "time"

// PreviewValues are the sample values shown when a template is previewed
// without a real recipient.
type PreviewValues struct {
	RecipientFirstName   string `json:"recipient_first_name"`
	RecipientLastName    string `json:"recipient_last_name"`
	RecipientEmail       string `json:"recipient_email"`
	RecipientInstitution string `json:"recipient_institution"`
	IssuerName           string `json:"issuer_name"`
	IssuerContact        string `json:"issuer_contact"`
	BadgeName            string `json:"badge_name"`
	BadgeDescription     string `json:"badge_description"`
	BadgeCourse          string `json:"badge_course"`
	SeminarTitle         string `json:"seminar_title"`
	SeminarDuration      string `json:"seminar_duration"`
}

// DefaultPreviewValues returns the built-in sample values
func DefaultPreviewValues() PreviewValues {
	return PreviewValues{
		RecipientFirstName:   "John",
		RecipientLastName:    "Doe",
		RecipientEmail:       "john.doe@example.com",
		RecipientInstitution: "Example Institute",
		IssuerName:           "Issuer Name",
		IssuerContact:        "issuer@example.com",
		BadgeName:            "Sample Badge",
		BadgeDescription:     "Awarded for completing the sample course.",
		BadgeCourse:          "Sample Course",
		SeminarTitle:         "Sample Seminar",
		SeminarDuration:      "8 hours",
	}
}

// withDefaults fills empty fields from the built-in values
func (p PreviewValues) withDefaults() PreviewValues {
	d := DefaultPreviewValues()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&p.RecipientFirstName, d.RecipientFirstName)
	fill(&p.RecipientLastName, d.RecipientLastName)
	fill(&p.RecipientEmail, d.RecipientEmail)
	fill(&p.RecipientInstitution, d.RecipientInstitution)
	fill(&p.IssuerName, d.IssuerName)
	fill(&p.IssuerContact, d.IssuerContact)
	fill(&p.BadgeName, d.BadgeName)
	fill(&p.BadgeDescription, d.BadgeDescription)
	fill(&p.BadgeCourse, d.BadgeCourse)
	fill(&p.SeminarTitle, d.SeminarTitle)
	fill(&p.SeminarDuration, d.SeminarDuration)
	return p
}

// PreviewContext builds a context filled with sample values. Seminar dates
// are two and one month before now, the birth date is the Unix epoch.
func PreviewContext(values PreviewValues, number, hash string, now time.Time, dateLayout string) Context {
	v := values.withDefaults()
	epoch := time.Unix(0, 0).In(now.Location())
	return Context{
		Recipient: Recipient{
			FirstName:   v.RecipientFirstName,
			LastName:    v.RecipientLastName,
			Email:       v.RecipientEmail,
			BirthDate:   epoch.Format(dateLayout),
			Institution: v.RecipientInstitution,
		},
		Issuer: Issuer{
			Name:    v.IssuerName,
			Contact: v.IssuerContact,
		},
		Badge: Badge{
			Name:        v.BadgeName,
			Description: v.BadgeDescription,
			Number:      number,
			Course:      v.BadgeCourse,
			Hash:        hash,
			DateIssued:  now.Format(dateLayout),
		},
		Booking: Booking{
			Title:     v.SeminarTitle,
			StartDate: now.AddDate(0, -2, 0).Format(dateLayout),
			EndDate:   now.AddDate(0, -1, 0).Format(dateLayout),
			Duration:  v.SeminarDuration,
		},
		Now:  now,
		Hash: hash,
	}
}
