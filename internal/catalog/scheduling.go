package catalog

// Scheduling returns the booking-backend function table. Tenant identity is
// never a parameter of any entry: it travels only as a side channel, and the
// adapter strips it if a model hallucinates it into the arguments.
func Scheduling() *Catalog {
	return New([]Entry{
		{
			Name:        "find_patient",
			Description: "Look up a patient record by name and date of birth or phone number.",
			Params: map[string]Param{
				"name":          {Type: TypeString, Description: "Patient full name", Required: true},
				"date_of_birth": {Type: TypeString, Description: "Date of birth, YYYY-MM-DD"},
				"phone":         {Type: TypeString, Description: "Patient phone number"},
			},
			Priority: true,
		},
		{
			Name:        "create_patient",
			Description: "Create a new patient record when find_patient returned no match.",
			Params: map[string]Param{
				"name":          {Type: TypeString, Description: "Patient full name", Required: true},
				"date_of_birth": {Type: TypeString, Description: "Date of birth, YYYY-MM-DD", Required: true},
				"phone":         {Type: TypeString, Description: "Contact phone number", Required: true},
				"email":         {Type: TypeString, Description: "Contact email"},
			},
			DependsOn: []string{"find_patient"},
			Priority:  true,
		},
		{
			Name:        "update_patient",
			Description: "Update contact details on an existing patient record.",
			Params: map[string]Param{
				"patient_id": {Type: TypeString, Description: "Patient id from find_patient", Required: true},
				"phone":      {Type: TypeString, Description: "New phone number"},
				"email":      {Type: TypeString, Description: "New email address"},
			},
			DependsOn: []string{"find_patient"},
		},
		{
			Name:        "list_providers",
			Description: "List providers (practitioners) and the service types they offer.",
			Params:      map[string]Param{},
			Priority:    true,
		},
		{
			Name:        "list_services",
			Description: "List bookable service types with durations.",
			Params:      map[string]Param{},
			Priority:    true,
		},
		{
			Name:        "get_appointments",
			Description: "List upcoming appointments for a patient.",
			Params: map[string]Param{
				"patient_id": {Type: TypeString, Description: "Patient id from find_patient", Required: true},
			},
			DependsOn: []string{"find_patient"},
			Priority:  true,
		},
		{
			Name:        "get_occupied_slots",
			Description: "List occupied time slots for a provider on a given day.",
			Params: map[string]Param{
				"provider_id": {Type: TypeString, Description: "Provider id from list_providers", Required: true},
				"date":        {Type: TypeString, Description: "Day to inspect, YYYY-MM-DD", Required: true},
			},
			DependsOn: []string{"list_providers"},
			Priority:  true,
		},
		{
			Name:        "book_appointment",
			Description: "Book an appointment at an agreed free time slot.",
			Params: map[string]Param{
				"patient_id":  {Type: TypeString, Description: "Patient id from find_patient", Required: true},
				"provider_id": {Type: TypeString, Description: "Provider id from list_providers", Required: true},
				"service":     {Type: TypeString, Description: "Service type", Required: true},
				"start_time":  {Type: TypeString, Description: "Slot start, RFC 3339", Required: true},
			},
			DependsOn: []string{"find_patient", "get_occupied_slots"},
			Priority:  true,
		},
		{
			Name:        "reschedule_appointment",
			Description: "Move an existing appointment to a new free time slot.",
			Params: map[string]Param{
				"appointment_id": {Type: TypeString, Description: "Appointment id from get_appointments", Required: true},
				"start_time":     {Type: TypeString, Description: "New slot start, RFC 3339", Required: true},
			},
			DependsOn: []string{"get_appointments", "get_occupied_slots"},
			Priority:  true,
		},
		{
			Name:        "cancel_appointment",
			Description: "Cancel an existing appointment.",
			Params: map[string]Param{
				"appointment_id": {Type: TypeString, Description: "Appointment id from get_appointments", Required: true},
				"reason":         {Type: TypeString, Description: "Cancellation reason"},
			},
			DependsOn: []string{"get_appointments"},
			Priority:  true,
		},
		{
			Name:        "get_office_hours",
			Description: "Get opening and closing hours for a given day.",
			Params: map[string]Param{
				"date": {Type: TypeString, Description: "Day to inspect, YYYY-MM-DD", Required: true},
			},
		},
		{
			Name:        "add_visit_note",
			Description: "Attach a free-form note to a patient record.",
			Params: map[string]Param{
				"patient_id": {Type: TypeString, Description: "Patient id from find_patient", Required: true},
				"note":       {Type: TypeString, Description: "Note text", Required: true},
			},
			DependsOn: []string{"find_patient"},
		},
	})
}
