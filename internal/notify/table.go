package notify

import "github.com/narvanalabs/locum/internal/models"

// Audience is who receives a notification for a transition.
type Audience string

const (
	AudienceApplicant     Audience = "applicant"      // the doctor who applied
	AudienceFacilityStaff Audience = "facility_staff" // active members who review applications
	AudienceSubject       Audience = "subject"        // the verified doctor or facility owners
	AudienceAdmins        Audience = "admins"         // platform administrators
	AudienceInvitee       Audience = "invitee"        // the invited person
	AudienceInviter       Audience = "inviter"        // the member who sent the invitation
)

// Created is the from-state of an entity's creation.
const Created = ""

// Any matches every from-state.
const Any = "*"

// Rule is one (audience, type) pair produced by a transition.
type Rule struct {
	Audience Audience
	Type     models.NotificationType
}

type edge struct {
	entity models.EntityKind
	from   string
	to     string
}

// table maps committed transitions to notifications.
var table = map[edge][]Rule{
	{models.EntityApplication, Created, string(models.ApplicationStatusPending)}: {
		{AudienceFacilityStaff, models.NotificationApplicationSubmitted},
	},
	{models.EntityApplication, string(models.ApplicationStatusPending), string(models.ApplicationStatusEmployerApproved)}: {
		{AudienceApplicant, models.NotificationApplicationApproved},
	},
	{models.EntityApplication, string(models.ApplicationStatusPending), string(models.ApplicationStatusRejected)}: {
		{AudienceApplicant, models.NotificationApplicationRejected},
	},
	{models.EntityApplication, string(models.ApplicationStatusEmployerApproved), string(models.ApplicationStatusDoctorConfirmed)}: {
		{AudienceFacilityStaff, models.NotificationApplicationConfirmed},
	},
	{models.EntityApplication, Any, string(models.ApplicationStatusCancelled)}: {
		{AudienceFacilityStaff, models.NotificationApplicationCancelled},
	},
	{models.EntityApplication, string(models.ApplicationStatusDoctorConfirmed), string(models.ApplicationStatusCompleted)}: {
		{AudienceApplicant, models.NotificationApplicationCompleted},
	},

	{models.EntityVerification, Created, string(models.VerificationStatusPending)}: {
		{AudienceAdmins, models.NotificationVerificationSubmitted},
	},
	{models.EntityVerification, string(models.VerificationStatusRejected), string(models.VerificationStatusPending)}: {
		{AudienceAdmins, models.NotificationVerificationSubmitted},
	},
	{models.EntityVerification, string(models.VerificationStatusPending), string(models.VerificationStatusApproved)}: {
		{AudienceSubject, models.NotificationVerificationApproved},
	},
	{models.EntityVerification, string(models.VerificationStatusPending), string(models.VerificationStatusRejected)}: {
		{AudienceSubject, models.NotificationVerificationRejected},
	},

	{models.EntityInvitation, Created, string(models.InvitationStatusPending)}: {
		{AudienceInvitee, models.NotificationInvitationReceived},
	},
	{models.EntityInvitation, string(models.InvitationStatusPending), string(models.InvitationStatusAccepted)}: {
		{AudienceInviter, models.NotificationInvitationAccepted},
	},
	{models.EntityInvitation, string(models.InvitationStatusPending), string(models.InvitationStatusDeclined)}: {
		{AudienceInviter, models.NotificationInvitationDeclined},
	},
	{models.EntityInvitation, string(models.InvitationStatusPending), string(models.InvitationStatusExpired)}: {
		{AudienceInviter, models.NotificationInvitationExpired},
	},
}

// RulesFor returns the rules for a transition. An exact from-state entry
// takes precedence over the wildcard entry.
func RulesFor(entity models.EntityKind, from, to string) []Rule {
	if rules, ok := table[edge{entity, from, to}]; ok {
		return rules
	}
	if from == Created {
		return nil
	}
	return table[edge{entity, Any, to}]
}
