package classify

// DefaultCategories is the taxonomy used when configuration names none.
func DefaultCategories() []Category {
	return []Category{
		{Name: "IA > negocio", Keywords: []string{"caso de uso", "decisión estratégica", "métrica", "impacto", "adopción", "empresa", "negocio", "ROI", "implementación", "transformación digital"}},
		{Name: "IA > políticas", Keywords: []string{"normativa", "regulación", "ética", "debate", "marco regulatorio", "implicancia social", "privacidad", "responsabilidad", "gobernanza"}},
		{Name: "IA > arquitectura + código", Keywords: []string{"buena práctica", "herramienta", "framework", "MLOps", "pipeline", "deployment", "automatización", "infraestructura", "código", "arquitectura"}},
		{Name: "IA > frontera + R&D", Keywords: []string{"investigación", "paper", "modelo", "técnica", "tendencia", "laboratorio", "avance", "innovación", "frontera", "estado del arte"}},
		{Name: "IA > as a service / product", Keywords: []string{"API", "plataforma", "herramienta", "producto", "servicio", "SaaS", "PaaS", "empaquetado", "solución"}},
		{Name: "Curiosidad de la semana", Keywords: []string{"inusual", "hack", "experimento", "lúdico", "creativo", "interesante", "curioso", "divertido", "innovador", "sorprendente"}},
	}
}

// Names returns the category names in order.
func Names(categories []Category) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.Name)
	}
	return out
}
