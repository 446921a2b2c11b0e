package notification

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core/user"
)

// Kind is the closed set of email variants. Each variant carries exactly
// the data its template pair needs, so a send site cannot pick a template
// without also supplying its parameters. The unexported method keeps the
// set sealed to this package.
type Kind interface {
	// Type is the stored enum value on the notification row.
	Type() string
	Subject() string

	template() string
	data(usr user.User) interface{}
}

var errUnknownKind = errors.New("unknown notification kind")

type (
	Welcome  struct{}
	Reminder struct{}

	ProgressReport struct {
		Stats ProgressStats
	}

	Completion struct{}

	Milestone struct {
		Percent int // one of 25, 50, 75, 100
	}

	// Offer is the admin ad-hoc send with a custom subject and body.
	Offer struct {
		CustomSubject string
		Message       string
	}

	DiscountCode struct {
		Code    string
		Company string
	}
)

type (
	nameData struct {
		Name string
	}

	progressReportData struct {
		Name         string
		Stats        ProgressStats
		WatchMinutes int
	}

	milestoneData struct {
		Name     string
		Percent  int
		Headline string
		Body     string
		CTALabel string
	}

	offerData struct {
		Name    string
		Message string
	}

	discountCodeData struct {
		Name       string
		Code       string
		Company    string
		ExpiryDays int
	}
)

func (Welcome) Type() string                   { return TypeWelcome }
func (Welcome) Subject() string                { return "Welcome to AI Masterclass!" }
func (Welcome) template() string               { return "welcome" }
func (Welcome) data(usr user.User) interface{} { return nameData{Name: usr.DisplayName()} }

func (Reminder) Type() string                   { return TypeReminder }
func (Reminder) Subject() string                { return "Continue Your AI Masterclass Journey" }
func (Reminder) template() string               { return "reminder" }
func (Reminder) data(usr user.User) interface{} { return nameData{Name: usr.DisplayName()} }

func (ProgressReport) Type() string     { return TypeProgress }
func (ProgressReport) Subject() string  { return "Your AI Masterclass Progress Report 📊" }
func (ProgressReport) template() string { return "progress_report" }
func (k ProgressReport) data(usr user.User) interface{} {
	return progressReportData{
		Name:         usr.DisplayName(),
		Stats:        k.Stats,
		WatchMinutes: k.Stats.WatchTimeSeconds / 60,
	}
}

func (Completion) Type() string                   { return TypeCompletion }
func (Completion) Subject() string                { return "Congratulations on Completing AI Masterclass! 🎉" }
func (Completion) template() string               { return "completion" }
func (Completion) data(usr user.User) interface{} { return nameData{Name: usr.DisplayName()} }

func (k Milestone) Type() string { return fmt.Sprintf("milestone_%d", k.Percent) }

func (k Milestone) Subject() string {
	switch k.Percent {
	case 25:
		return "You're making great progress! 🎯"
	case 50:
		return "Halfway there! 🚀"
	case 75:
		return "Almost at the finish line! 💪"
	default:
		return "Congratulations on completing AI Masterclass! 🎉"
	}
}

func (Milestone) template() string { return "milestone" }

func (k Milestone) data(usr user.User) interface{} {
	d := milestoneData{Name: usr.DisplayName(), Percent: k.Percent}
	switch k.Percent {
	case 25:
		d.Headline = fmt.Sprintf("Great start, %s!", d.Name)
		d.Body = "You've completed 25% of the AI Masterclass. Keep up the momentum! Even 15 minutes a day can help you finish the course in no time."
		d.CTALabel = "Continue Learning"
	case 50:
		d.Headline = fmt.Sprintf("You're halfway done, %s!", d.Name)
		d.Body = "50% complete - you're making excellent progress on the AI Masterclass. The best insights are still ahead. Keep going!"
		d.CTALabel = "Continue Learning"
	case 75:
		d.Headline = fmt.Sprintf("75%% complete, %s!", d.Name)
		d.Body = "You're so close to finishing the AI Masterclass. Just a few more lessons to go! Push through and earn your certificate."
		d.CTALabel = "Finish the Course"
	default:
		d.Headline = fmt.Sprintf("Congratulations, %s!", d.Name)
		d.Body = "You've completed the entire AI Masterclass. You now have a solid foundation in AI for business."
		d.CTALabel = "View Certificate"
	}
	return d
}

func (k Offer) Type() string { return TypeOffer }

func (k Offer) Subject() string {
	if k.CustomSubject != "" {
		return k.CustomSubject
	}
	return "AI Masterclass Update"
}

func (Offer) template() string { return "offer" }

func (k Offer) data(usr user.User) interface{} {
	return offerData{Name: usr.DisplayName(), Message: k.Message}
}

func (DiscountCode) Type() string     { return TypeDiscountCode }
func (DiscountCode) Subject() string  { return "Your Exclusive AI Masterclass Discount" }
func (DiscountCode) template() string { return "discount_code" }

func (k DiscountCode) data(usr user.User) interface{} {
	return discountCodeData{
		Name:       usr.DisplayName(),
		Code:       k.Code,
		Company:    k.Company,
		ExpiryDays: 7,
	}
}

// kindFromStored rebuilds the Kind for a stored type, for outbox rows that
// were enqueued rather than sent inline. Only self-contained kinds can be
// rebuilt; parameterized ones (offer, progress report, discount code) are
// always sent inline and never appear in the outbox.
func kindFromStored(typ string) (Kind, bool) {
	switch typ {
	case TypeWelcome:
		return Welcome{}, true
	case TypeReminder:
		return Reminder{}, true
	case TypeCompletion:
		return Completion{}, true
	case TypeMilestone25:
		return Milestone{Percent: 25}, true
	case TypeMilestone50:
		return Milestone{Percent: 50}, true
	case TypeMilestone75:
		return Milestone{Percent: 75}, true
	case TypeMilestone100:
		return Milestone{Percent: 100}, true
	default:
		return nil, false
	}
}

// KindForAdminSend maps the admin send-email payload onto a Kind.
func KindForAdminSend(typ, customSubject, customMessage string, stats ProgressStats) (Kind, error) {
	switch typ {
	case TypeWelcome:
		return Welcome{}, nil
	case TypeReminder:
		return Reminder{}, nil
	case TypeProgress:
		return ProgressReport{Stats: stats}, nil
	case TypeCompletion:
		return Completion{}, nil
	case TypeOffer:
		return Offer{CustomSubject: customSubject, Message: customMessage}, nil
	case TypeMilestone25, TypeMilestone50, TypeMilestone75, TypeMilestone100:
		kind, _ := kindFromStored(typ)
		return kind, nil
	default:
		return nil, errUnknownKind
	}
}
