package content

// categories is ordered; earlier rows win ties. Georgian terms are stems so
// that inflected forms still match at the word start.
var categories = []Category{
	{
		Slug: "it",
		Phrases: []string{
			"it support", "help desk", "system administrator", "software engineer",
			"data analyst", "qa engineer", "network engineer", "it სპეციალისტ",
			"სისტემური ადმინისტრატორ", "ვებ დეველოპერ",
		},
		Keywords: []string{
			"developer", "programmer", "devops", "frontend", "backend", "fullstack",
			"golang", "python", "javascript", "sysadmin", "დეველოპერ", "პროგრამისტ",
			"პროგრამირებ",
		},
	},
	{
		Slug: "sales",
		Phrases: []string{
			"sales manager", "sales representative", "sales consultant",
			"გაყიდვების მენეჯერ", "გაყიდვების კონსულტანტ", "სავაჭრო წარმომადგენელ",
		},
		Keywords: []string{"sales", "seller", "გაყიდვ", "გამყიდველ", "კონსულტანტ"},
	},
	{
		Slug: "finance",
		Phrases: []string{
			"chief accountant", "financial analyst", "financial manager",
			"მთავარი ბუღალტერ", "ფინანსური ანალიტიკოს", "ფინანსური მენეჯერ",
		},
		Keywords: []string{"accountant", "accounting", "finance", "auditor", "ბუღალტ", "ფინანს", "აუდიტ"},
	},
	{
		Slug: "marketing",
		Phrases: []string{
			"digital marketing", "social media", "content manager", "brand manager",
			"ციფრული მარკეტინგ", "სოციალური მედი",
		},
		Keywords: []string{"marketing", "smm", "copywriter", "მარკეტინგ", "მარკეტოლოგ", "კოპირაიტერ"},
	},
	{
		Slug: "customer-service",
		Phrases: []string{
			"customer service", "call center", "contact center", "customer support",
			"ქოლ ცენტრ", "მომხმარებელთა მომსახურებ",
		},
		Keywords: []string{"support", "operator", "receptionist", "ოპერატორ", "მხარდაჭერ", "რესეფშენ"},
	},
	{
		Slug: "administration",
		Phrases: []string{
			"office manager", "executive assistant", "hr manager", "human resources",
			"ოფის მენეჯერ", "ადამიანური რესურს",
		},
		Keywords: []string{"administrator", "assistant", "secretary", "ადმინისტრატორ", "ასისტენტ", "მდივან"},
	},
	{
		Slug: "logistics",
		Phrases: []string{
			"supply chain", "warehouse manager", "delivery driver", "საწყობის მენეჯერ",
		},
		Keywords: []string{"logistics", "warehouse", "driver", "courier", "ლოჯისტიკ", "საწყობ", "მძღოლ", "კურიერ"},
	},
	{
		Slug: "construction",
		Phrases: []string{
			"civil engineer", "construction manager", "სამშენებლო ინჟინერ",
		},
		Keywords: []string{"construction", "builder", "electrician", "welder", "მშენებლ", "ელექტრიკოს", "შემდუღებელ"},
	},
	{
		Slug: "medicine",
		Phrases: []string{
			"medical representative", "family doctor", "სამედიცინო წარმომადგენელ", "ოჯახის ექიმ",
		},
		Keywords: []string{"doctor", "nurse", "pharmacist", "dentist", "ექიმ", "ექთან", "ფარმაცევტ", "სტომატოლოგ"},
	},
	{
		Slug: "education",
		Phrases: []string{
			"english teacher", "school teacher", "ინგლისურის მასწავლებელ", "დაწყებითი კლასების",
		},
		Keywords: []string{"teacher", "tutor", "lecturer", "მასწავლებელ", "პედაგოგ", "ლექტორ", "რეპეტიტორ"},
	},
	{
		Slug: "hospitality",
		Phrases: []string{
			"front desk", "hotel manager", "sous chef", "სასტუმროს მენეჯერ",
		},
		Keywords: []string{"waiter", "chef", "cook", "bartender", "barista", "hotel", "მიმტან", "მზარეულ", "ბარმენ", "ბარისტ", "სასტუმრო"},
	},
	{
		Slug: "legal",
		Phrases: []string{
			"legal counsel", "legal advisor", "იურიდიული მრჩეველ",
		},
		Keywords: []string{"lawyer", "attorney", "notary", "იურისტ", "ადვოკატ", "ნოტარ"},
	},
	{
		Slug: "security",
		Phrases: []string{
			"security guard", "დაცვის თანამშრომელ", "დაცვის სამსახურ",
		},
		Keywords: []string{"guard", "security", "დაცვ"},
	},
	{
		Slug: "cleaning",
		Phrases: []string{
			"cleaning manager", "დამლაგებელი ქალბატონ",
		},
		Keywords: []string{"cleaner", "housekeeper", "janitor", "დამლაგებელ", "დიასახლის"},
	},
}
