package provision

// Kind describes the sentinels and wording of one script family.
type Kind struct {
	Name           string // metric and history label
	Label          string // human wording used in messages
	Success        string // stdout sentinel marking success
	Failure        string // stdout sentinel marking failure, empty if none
	SuccessMessage string
}

var (
	KindProvision = Kind{
		Name:           "provision",
		Label:          "Provisioning",
		Success:        "PROVISION_SUCCESS",
		Failure:        "PROVISION_FAILED",
		SuccessMessage: "VM provisioned successfully",
	}
	KindUpdate = Kind{
		Name:           "update",
		Label:          "Update",
		Success:        "UPDATE_SUCCESS",
		SuccessMessage: "VM configuration updated successfully",
	}
)
