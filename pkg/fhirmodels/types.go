package fhirmodels

// Code systems and value set constants for the vital-signs subset.

const (
	SystemLOINC               = "http://loinc.org"
	SystemUCUM                = "http://unitsofmeasure.org"
	SystemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemMailto              = "mailto:"
)

// ObservationStatus values per FHIR R4.
const (
	ObsStatusRegistered  = "registered"
	ObsStatusPreliminary = "preliminary"
	ObsStatusFinal       = "final"
	ObsStatusAmended     = "amended"
)

// ObservationCategory codes.
const (
	ObsCategoryVitalSigns        = "vital-signs"
	ObsCategoryVitalSignsDisplay = "Vital Signs"
)

// LOINC codes for blood pressure and heart rate.
const (
	LOINCBloodPressurePanel = "85354-9"
	LOINCSystolic           = "8480-6"
	LOINCDiastolic          = "8462-4"
	LOINCHeartRate          = "8867-4"
)

const (
	DisplayBloodPressurePanel = "Blood pressure panel with all children"
	DisplaySystolic           = "Systolic blood pressure"
	DisplayDiastolic          = "Diastolic blood pressure"
	DisplayHeartRate          = "Heart rate"
)

// UCUM units. Unit is the human readable form, Code the UCUM expression.
const (
	UnitMmHg   = "mmHg"
	CodeMmHg   = "mm[Hg]"
	UnitPerMin = "beats/min"
	CodePerMin = "/min"
)
