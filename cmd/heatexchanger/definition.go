package heatexchanger

import "github.com/picogrid/legion-connector/pkg/models"

// SimulatorExternalID identifies the heat exchanger simulator in Legion
const SimulatorExternalID = "HeatExchanger"

// Definition describes the heat exchanger simulator to Legion
func Definition() models.SimulatorDefinition {
	return models.SimulatorDefinition{
		ExternalID:         SimulatorExternalID,
		Name:               "Heat Exchanger",
		FileExtensionTypes: []string{"yaml", "yml"},
		ModelTypes: []models.SimulatorModelType{
			{Name: "Steady State", Key: "SteadyState"},
		},
		StepFields: []models.SimulatorStepFields{
			{
				StepType: models.StepFieldsGetSet,
				Fields: []models.SimulatorStepField{
					{
						Name:     ArgVariable,
						Label:    "Variable",
						Info:     "Name of the model variable (inlet_temp, flow_rate, outlet_temp, ...)",
						Required: true,
					},
				},
			},
			{
				StepType: models.StepFieldsCommand,
				Fields: []models.SimulatorStepField{
					{
						Name:    ArgCommand,
						Label:   "Command",
						Info:    "Command to execute",
						Options: []string{CommandSolve},
					},
				},
			},
		},
		UnitQuantities: []models.SimulatorQuantity{
			{
				Name:  "Temperature",
				Label: "Temperature",
				Units: []models.SimulatorUnitEntry{
					{Name: "degC", Label: "Degrees Celsius"},
				},
			},
			{
				Name:  "MassFlow",
				Label: "Mass flow",
				Units: []models.SimulatorUnitEntry{
					{Name: "kg/s", Label: "Kilograms per second"},
				},
			},
			{
				Name:  "HeatCapacity",
				Label: "Specific heat capacity",
				Units: []models.SimulatorUnitEntry{
					{Name: "J/kg.K", Label: "Joules per kilogram kelvin"},
				},
			},
			{
				Name:  "Power",
				Label: "Power",
				Units: []models.SimulatorUnitEntry{
					{Name: "W", Label: "Watts"},
					{Name: "kW", Label: "Kilowatts"},
				},
			},
			{
				Name:  "Efficiency",
				Label: "Efficiency",
				Units: []models.SimulatorUnitEntry{
					{Name: "%", Label: "Percent"},
				},
			},
		},
	}
}
