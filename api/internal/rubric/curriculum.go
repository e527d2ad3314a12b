package rubric

const (
	DefaultArea      = "AC01"
	DefaultObjective = "OP09"
)

// Curriculum holds the auxiliary tag tables used to label preference records.
type Curriculum struct {
	Areas      Table
	Objectives Table
	Subjects   []string
}

func DefaultCurriculum() *Curriculum {
	return &Curriculum{
		Areas: newTable("area_conocimiento", map[string]string{
			"AC01": "Pensamiento numérico y sistemas numéricos",
			"AC02": "Pensamiento espacial y sistemas geométricos",
			"AC03": "Medición y sistemas métricos",
			"AC04": "Análisis de datos y probabilidad",
			"AC05": "Álgebra y relaciones",
		}),
		Objectives: newTable("objetivo_pedagogico", map[string]string{
			"OP01": "Reconocer y describir regularidades y patrones en distintos contextos.",
			"OP02": "Describir y representar situaciones de variación (diagramas, tablas, etc.).",
			"OP03": "Construir igualdades/desigualdades numéricas.",
			"OP04": "Resolver situaciones aditivas y multiplicativas.",
			"OP05": "Resolver problemas con fracciones, decimales y porcentajes.",
			"OP06": "Interpretar y representar datos (gráficos, tablas).",
			"OP07": "Aplicar geometría para describir figuras/cuerpos.",
			"OP08": "Utilizar unidades de medida (longitud, área, volumen, tiempo).",
			"OP09": "Desarrollar pensamiento lógico-crítico.",
			"OP10": "Fomentar la comunicación matemática.",
		}),
		Subjects: []string{
			"Addition, subtraction, multiplication, division",
			"Whole numbers, fractions, decimals, percentages",
			"Geometric shapes, basic area and perimeter",
			"Data in tables or simple graphs",
			"Measurement (time, volume, length)",
			"Reasoning with simple equalities and inequalities",
			"Pattern recognition",
			"Word problems with real-life context",
		},
	}
}
